package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carelinehq/telehealth-queue/internal/appointment"
	"github.com/carelinehq/telehealth-queue/internal/auth"
	redisclient "github.com/carelinehq/telehealth-queue/internal/redis"
)

func bookAppointmentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		if req.Date == "" || req.TimeSlot == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "date and time_slot are required")
			return
		}

		appt, err := svc.Book(r.Context(), actor, appointment.BookRequest{
			DoctorID: doctorID,
			Date:     req.Date,
			TimeSlot: req.TimeSlot,
			Reason:   req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func doctorQueueHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

		entries, err := svc.DoctorQueue(r.Context(), actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]QueueEntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, QueueEntryResponse{
				AppointmentResponse: toAppointmentResponse(&entries[i].Appointment),
				PatientName:         entries[i].PatientName,
				WaitingTime:         entries[i].WaitingTime,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func patientHistoryHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

		entries, err := svc.PatientHistory(r.Context(), actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]HistoryEntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, HistoryEntryResponse{
				AppointmentResponse: toAppointmentResponse(&entries[i].Appointment),
				DoctorName:          entries[i].DoctorName,
				Specialization:      entries[i].Specialization,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateStatusHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		status := appointment.Status(strings.ToUpper(req.Status))

		appt, err := svc.Transition(r.Context(), actor, id, status)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Confirm(r.Context(), actor, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func denyAppointmentHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Transition(r.Context(), actor, id, appointment.StatusRejected)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listDoctorsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := svc.Doctors(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(profiles))
		for _, p := range profiles {
			resp = append(resp, DoctorResponse{
				ID:               p.ID,
				Name:             p.Name,
				Email:            p.Email,
				Specialization:   p.Specialization,
				ConsultationTime: p.ConsultationTime,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// handleServiceError is the single mapping from domain errors to HTTP
// status. Every mutating handler funnels through it.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrActiveAppointmentExists):
		writeError(w, http.StatusBadRequest, "active_appointment_exists", err.Error())
	case errors.Is(err, appointment.ErrTerminalStatus):
		writeError(w, http.StatusBadRequest, "appointment_locked", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status_transition", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "queue_busy", "the queue is being updated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
