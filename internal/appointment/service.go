package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelinehq/telehealth-queue/internal/notify"
	redisclient "github.com/carelinehq/telehealth-queue/internal/redis"
)

var (
	ErrForbidden               = errors.New("operation not permitted for this actor")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrTerminalStatus          = errors.New("appointment is in a terminal status and locked")
	ErrInvalidStatus           = errors.New("unknown status")
	ErrActiveAppointmentExists = errors.New("patient already has an active appointment on this date")
)

const DefaultReason = "General Consultation"

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		log:      log,
	}
}

type BookRequest struct {
	DoctorID uuid.UUID
	Date     string
	TimeSlot string
	Reason   string
}

// Book creates a PENDING appointment request for the calling patient. The
// queue number stays unassigned until the doctor confirms; a patient may
// hold at most one non-terminal appointment per date across all doctors.
func (s *Service) Book(ctx context.Context, actor Actor, req BookRequest) (*Appointment, error) {
	if actor.Role != RolePatient {
		return nil, fmt.Errorf("%w: only patients can book appointments", ErrForbidden)
	}

	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	exists, err := s.repo.HasActiveAppointmentOnDate(ctx, actor.UserID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("check active appointment: %w", err)
	}
	if exists {
		return nil, ErrActiveAppointmentExists
	}

	reason := req.Reason
	if reason == "" {
		reason = DefaultReason
	}

	appt, err := s.repo.CreateAppointment(ctx, &Appointment{
		PatientID:   actor.UserID,
		DoctorID:    req.DoctorID,
		Date:        req.Date,
		TimeSlot:    req.TimeSlot,
		Reason:      reason,
		QueueNumber: 0,
		Status:      StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.publishQueueUpdate(ctx, appt, notify.EventAppointmentUpdated)

	return appt, nil
}

// Confirm moves a PENDING appointment to BOOKED and assigns the next queue
// number. It is the BOOKED case of Transition; kept as a named operation
// because it is a distinct endpoint.
func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, actor, id, StatusBooked)
}

// Transition performs one status change as a single transaction: the
// status write, queue compaction when an active appointment leaves the
// queue, the queue-number assignment when one enters it, and the
// completion metric all commit together or not at all. Notifications go
// out only after the commit.
func (s *Service) Transition(ctx context.Context, actor Actor, id uuid.UUID, newStatus Status) (*Appointment, error) {
	if !newStatus.Valid() || newStatus == StatusPending {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, string(newStatus))
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.authorize(ctx, actor, appt, newStatus); err != nil {
		return nil, err
	}

	var updated *Appointment

	err = s.locker.WithPartitionLock(ctx, appt.Partition().Key(), func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Store) error {
			// Re-read inside the transaction: the pre-check above ran
			// without the lock and the record may have moved since.
			cur, err := tx.GetAppointmentByID(txCtx, id)
			if err != nil {
				return err
			}
			if err := s.checkTransition(cur.Status, newStatus, actor.Role); err != nil {
				return err
			}

			oldQueueNumber := cur.QueueNumber
			wasActive := cur.Status.Active()

			if newStatus == StatusBooked {
				count, err := tx.CountActive(txCtx, cur.Partition())
				if err != nil {
					return fmt.Errorf("count active: %w", err)
				}
				updated, err = tx.SetStatusAndQueueNumber(txCtx, id, StatusBooked, count+1)
				if err != nil {
					return fmt.Errorf("confirm appointment: %w", err)
				}
				return nil
			}

			updated, err = tx.SetStatus(txCtx, id, newStatus)
			if err != nil {
				return fmt.Errorf("update status: %w", err)
			}

			// An active appointment leaving the queue vacates its number;
			// close the gap so positions stay dense.
			if newStatus.Terminal() && wasActive && oldQueueNumber > 0 {
				if err := tx.CompactQueue(txCtx, cur.Partition(), oldQueueNumber); err != nil {
					return err
				}
			}

			if newStatus == StatusCompleted {
				err := tx.InsertMetric(txCtx, MetricEvent{
					MetricName: MetricConsultationCompleted,
					Category:   MetricCategoryProcess,
					Value:      1,
					Unit:       "count",
					DoctorID:   cur.DoctorID,
					PatientID:  cur.PatientID,
				})
				if err != nil {
					return err
				}
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, updated, newStatus)

	return updated, nil
}

// authorize checks role and ownership before the transaction. Patients may
// only touch their own appointments; doctors only appointments addressed
// to their own doctor record.
func (s *Service) authorize(ctx context.Context, actor Actor, appt *Appointment, newStatus Status) error {
	switch actor.Role {
	case RolePatient:
		if appt.PatientID != actor.UserID {
			return fmt.Errorf("%w: appointment belongs to another patient", ErrForbidden)
		}
	case RoleDoctor:
		doc, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return fmt.Errorf("%w: no doctor record for actor", ErrForbidden)
			}
			return fmt.Errorf("load doctor: %w", err)
		}
		if doc.ID != appt.DoctorID {
			return fmt.Errorf("%w: appointment belongs to another doctor", ErrForbidden)
		}
	default:
		return ErrForbidden
	}

	return s.checkTransition(appt.Status, newStatus, actor.Role)
}

// checkTransition consults the allowed-transition table and returns the
// error matching why the move is refused.
func (s *Service) checkTransition(from, to Status, role Role) error {
	if transitionAllowed(from, to, role) {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, from)
	}
	if transitionExists(from, to) {
		return fmt.Errorf("%w: %s may not set %s from %s", ErrForbidden, role, to, from)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// DoctorQueue returns the calling doctor's queue, ordered by position,
// with waiting times derived from the doctor's consultation time.
func (s *Service) DoctorQueue(ctx context.Context, actor Actor) ([]QueueEntry, error) {
	if actor.Role != RoleDoctor {
		return nil, fmt.Errorf("%w: only doctors can view their queue", ErrForbidden)
	}

	doc, err := s.repo.GetDoctorByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	entries, err := s.repo.ListDoctorQueue(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list doctor queue: %w", err)
	}

	for i := range entries {
		entries[i].WaitingTime = WaitingTime(entries[i].QueueNumber, doc.ConsultationTime)
	}

	return entries, nil
}

// PatientHistory returns the calling patient's appointments ordered by
// (date, timeSlot) with doctor identity joined in.
func (s *Service) PatientHistory(ctx context.Context, actor Actor) ([]HistoryEntry, error) {
	if actor.Role != RolePatient {
		return nil, fmt.Errorf("%w: only patients can view their history", ErrForbidden)
	}

	entries, err := s.repo.ListPatientHistory(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list patient history: %w", err)
	}

	return entries, nil
}

// Doctors returns the public doctor directory.
func (s *Service) Doctors(ctx context.Context) ([]DoctorProfile, error) {
	profiles, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return profiles, nil
}

// CancelStalePending cancels PENDING requests whose date has passed. They
// hold no queue number, so no compaction is involved; the reaper calls
// this periodically.
func (s *Service) CancelStalePending(ctx context.Context, before string) (int, error) {
	stale, err := s.repo.ListStalePending(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("list stale pending: %w", err)
	}

	cancelled := 0
	for _, appt := range stale {
		err := s.repo.InTx(ctx, func(txCtx context.Context, tx Store) error {
			cur, err := tx.GetAppointmentByID(txCtx, appt.ID)
			if err != nil {
				return err
			}
			if cur.Status != StatusPending {
				return nil
			}
			_, err = tx.SetStatus(txCtx, appt.ID, StatusCancelled)
			return err
		})
		if err != nil {
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("failed to cancel stale appointment")
			continue
		}

		cancelled++
		a := appt
		a.Status = StatusCancelled
		s.publishQueueUpdate(ctx, &a, notify.EventAppointmentUpdated)
	}

	return cancelled, nil
}

// Post-commit side effects. Failures are logged and swallowed: the
// transition has committed and must not appear failed to the caller.

func (s *Service) notifyTransition(ctx context.Context, appt *Appointment, newStatus Status) {
	eventType := notify.EventAppointmentUpdated
	if newStatus == StatusBooked {
		eventType = notify.EventAppointmentBooked
	}
	s.publishQueueUpdate(ctx, appt, eventType)

	switch newStatus {
	case StatusBooked:
		s.emailPatient(ctx, appt, "Appointment confirmed",
			fmt.Sprintf("Your appointment on %s (%s) is confirmed. You are number %d in the queue.",
				appt.Date, appt.TimeSlot, appt.QueueNumber))
	case StatusRejected, StatusCancelled:
		s.emailPatient(ctx, appt, "Appointment "+statusWord(newStatus),
			fmt.Sprintf("Your appointment on %s (%s) has been %s.",
				appt.Date, appt.TimeSlot, statusWord(newStatus)))
	}
}

func (s *Service) publishQueueUpdate(ctx context.Context, appt *Appointment, eventType string) {
	err := s.notifier.PublishQueueUpdate(ctx, notify.QueueEvent{
		Type:          eventType,
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Status:        string(appt.Status),
		QueueNumber:   appt.QueueNumber,
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to publish queue update")
	}
}

func (s *Service) emailPatient(ctx context.Context, appt *Appointment, subject, body string) {
	patient, err := s.repo.GetUserByID(ctx, appt.PatientID)
	if err != nil {
		s.log.Error().Err(err).
			Str("patient_id", appt.PatientID.String()).
			Msg("failed to load patient for email")
		return
	}

	if err := s.notifier.EmailPatient(ctx, patient.Email, subject, body); err != nil {
		s.log.Error().Err(err).
			Str("patient_id", appt.PatientID.String()).
			Msg("failed to email patient")
	}
}

func statusWord(s Status) string {
	switch s {
	case StatusRejected:
		return "denied"
	case StatusCancelled:
		return "cancelled"
	default:
		return string(s)
	}
}

// Today is the reaper's cutoff: appointment dates are calendar strings.
func Today() string {
	return time.Now().Format("2006-01-02")
}
