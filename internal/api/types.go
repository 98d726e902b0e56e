package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelinehq/telehealth-queue/internal/appointment"
)

type BookAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
	Reason   string `json:"reason,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	TimeSlot    string    `json:"time_slot"`
	Reason      string    `json:"reason"`
	QueueNumber int       `json:"queue_number,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type QueueEntryResponse struct {
	AppointmentResponse
	PatientName string `json:"patient_name"`
	WaitingTime int    `json:"waiting_time"`
}

type HistoryEntryResponse struct {
	AppointmentResponse
	DoctorName     string `json:"doctor_name"`
	Specialization string `json:"specialization"`
}

type DoctorResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Specialization   string    `json:"specialization"`
	ConsultationTime int       `json:"consultation_time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		Date:        a.Date,
		TimeSlot:    a.TimeSlot,
		Reason:      a.Reason,
		QueueNumber: a.QueueNumber,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
	}
}
