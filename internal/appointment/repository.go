package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Store contains all DB interactions needed by the service. The same
// interface is used inside and outside transactions: InTx hands the
// callback a Store bound to the open transaction.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]DoctorProfile, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// HasActiveAppointmentOnDate reports whether the patient already holds
	// a PENDING, BOOKED, or IN_PROGRESS appointment on the given date,
	// across all doctors.
	HasActiveAppointmentOnDate(ctx context.Context, patientID uuid.UUID, date string) (bool, error)

	// CountActive counts BOOKED and IN_PROGRESS appointments in the
	// partition. Queue numbers are assigned as count+1.
	CountActive(ctx context.Context, p Partition) (int, error)

	// SetStatus writes a new status, leaving the queue number untouched.
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error)

	// SetStatusAndQueueNumber writes both in one statement (confirm path).
	SetStatusAndQueueNumber(ctx context.Context, id uuid.UUID, status Status, queueNumber int) (*Appointment, error)

	// CompactQueue decrements the queue number of every active appointment
	// in the partition whose number is strictly greater than vacated.
	// Must only run inside the transaction that vacated the slot.
	CompactQueue(ctx context.Context, p Partition, vacated int) error

	InsertMetric(ctx context.Context, ev MetricEvent) error

	ListDoctorQueue(ctx context.Context, doctorID uuid.UUID) ([]QueueEntry, error)
	ListPatientHistory(ctx context.Context, patientID uuid.UUID) ([]HistoryEntry, error)
	ListStalePending(ctx context.Context, before string) ([]Appointment, error)
}

// Repository is a Store that can also open transactions.
type Repository interface {
	Store

	// InTx runs fn inside a single ACID transaction. fn's writes through
	// the passed Store commit together or not at all.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
