package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusBooked     Status = "BOOKED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// Active reports whether the status counts toward queue length.
// PENDING appointments hold no queue number and are excluded.
func (s Status) Active() bool {
	return s == StatusBooked || s == StatusInProgress
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusBooked, StatusInProgress,
		StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// Partition scopes queue ordering: queue numbers are dense within one
// (doctor, date, timeSlot) triple.
type Partition struct {
	DoctorID uuid.UUID
	Date     string
	TimeSlot string
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Date        string
	TimeSlot    string
	Reason      string
	QueueNumber int // 0 until confirmed
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Appointment) Partition() Partition {
	return Partition{DoctorID: a.DoctorID, Date: a.Date, TimeSlot: a.TimeSlot}
}

// Key is the partition's lock and cache key.
func (p Partition) Key() string {
	return p.DoctorID.String() + ":" + p.Date + ":" + p.TimeSlot
}

type User struct {
	ID                uuid.UUID
	Name              string
	Email             string
	Phone             *string
	Role              Role
	PreferredLanguage string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Doctor struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Specialization   string
	ConsultationTime int // minutes per consultation
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DoctorProfile is a doctor joined with their user identity, as served
// by the public directory.
type DoctorProfile struct {
	Doctor
	Name  string
	Email string
}

// QueueEntry is a doctor-queue row annotated with the patient's computed
// waiting time in minutes.
type QueueEntry struct {
	Appointment
	PatientName string
	WaitingTime int
}

// HistoryEntry is a patient-history row with the doctor identity joined in.
type HistoryEntry struct {
	Appointment
	DoctorName     string
	Specialization string
}

// MetricEvent is a disease-management metric sample. A completed
// consultation records one in the same transaction as the status write.
type MetricEvent struct {
	ID         int64
	MetricName string
	Category   string
	Value      float64
	Unit       string
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	CreatedAt  time.Time
}

const (
	MetricConsultationCompleted = "consultations_completed"
	MetricCategoryProcess       = "PROCESS"
)

type transition struct {
	from Status
	to   Status
}

// allowedTransitions is the single source of truth for which role may move
// an appointment between which statuses. Terminal statuses have no outgoing
// entries, so the lock on COMPLETED/REJECTED/CANCELLED records falls out of
// the table itself.
var allowedTransitions = map[transition][]Role{
	{StatusPending, StatusBooked}: {RoleDoctor},

	{StatusBooked, StatusInProgress}:    {RoleDoctor},
	{StatusInProgress, StatusCompleted}: {RoleDoctor},

	{StatusPending, StatusRejected}:    {RolePatient},
	{StatusBooked, StatusRejected}:     {RolePatient},
	{StatusInProgress, StatusRejected}: {RolePatient},

	{StatusPending, StatusCancelled}:    {RoleDoctor, RolePatient},
	{StatusBooked, StatusCancelled}:     {RoleDoctor, RolePatient},
	{StatusInProgress, StatusCancelled}: {RoleDoctor, RolePatient},
}

func transitionAllowed(from, to Status, role Role) bool {
	roles, ok := allowedTransitions[transition{from, to}]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// transitionExists reports whether any role may perform the transition.
// Used to tell "illegal from this status" apart from "wrong role".
func transitionExists(from, to Status) bool {
	_, ok := allowedTransitions[transition{from, to}]
	return ok
}
