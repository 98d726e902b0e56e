package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository methods serve inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db   querier
	pool *pgxpool.Pool // nil when bound to a transaction
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool, pool: pool}
}

// InTx opens a serializable transaction and hands fn a Store bound to it.
// The driver commits on nil, rolls back on error or panic.
func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if r.pool == nil {
		return errors.New("nested transaction")
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(ctx, &PgRepository{db: tx})
	})
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var phone *string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&phone,
		&u.Role,
		&u.PreferredLanguage,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Phone = phone
	return &u, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Specialization,
		&d.ConsultationTime,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&a.TimeSlot,
		&a.Reason,
		&a.QueueNumber,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const appointmentColumns = `id, patient_id, doctor_id, date, time_slot, reason, queue_number, status, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, role, preferred_language, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, specialization, consultation_time, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, specialization, consultation_time, created_at, updated_at
		FROM doctors
		WHERE user_id = $1
	`, userID)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]DoctorProfile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.id, d.user_id, d.specialization, d.consultation_time, d.created_at, d.updated_at,
		       u.name, u.email
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		ORDER BY u.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DoctorProfile
	for rows.Next() {
		var p DoctorProfile
		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Specialization,
			&p.ConsultationTime,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.Name,
			&p.Email,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, time_slot, reason, queue_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.PatientID, a.DoctorID, a.Date, a.TimeSlot, a.Reason, a.QueueNumber, a.Status)

	return scanAppointment(row)
}

func (r *PgRepository) HasActiveAppointmentOnDate(ctx context.Context, patientID uuid.UUID, date string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1
			  AND date = $2
			  AND status IN ('PENDING', 'BOOKED', 'IN_PROGRESS')
		)
	`, patientID, date).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) CountActive(ctx context.Context, p Partition) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND time_slot = $3
		  AND status IN ('BOOKED', 'IN_PROGRESS')
	`, p.DoctorID, p.Date, p.TimeSlot).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status)
	return scanAppointment(row)
}

func (r *PgRepository) SetStatusAndQueueNumber(ctx context.Context, id uuid.UUID, status Status, queueNumber int) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    queue_number = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status, queueNumber)
	return scanAppointment(row)
}

func (r *PgRepository) CompactQueue(ctx context.Context, p Partition, vacated int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET queue_number = queue_number - 1,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND date = $2
		  AND time_slot = $3
		  AND status IN ('BOOKED', 'IN_PROGRESS')
		  AND queue_number > $4
	`, p.DoctorID, p.Date, p.TimeSlot, vacated)
	if err != nil {
		return fmt.Errorf("compact queue: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertMetric(ctx context.Context, ev MetricEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO metric_events (metric_name, category, value, unit, doctor_id, patient_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, ev.MetricName, ev.Category, ev.Value, ev.Unit, ev.DoctorID, ev.PatientID)
	if err != nil {
		return fmt.Errorf("insert metric event: %w", err)
	}
	return nil
}

func (r *PgRepository) ListDoctorQueue(ctx context.Context, doctorID uuid.UUID) ([]QueueEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.date, a.time_slot, a.reason, a.queue_number, a.status, a.created_at, a.updated_at,
		       u.name
		FROM appointments a
		JOIN users u ON u.id = a.patient_id
		WHERE a.doctor_id = $1
		  AND a.status IN ('PENDING', 'BOOKED', 'IN_PROGRESS')
		ORDER BY CASE WHEN a.queue_number > 0 THEN 0 ELSE 1 END, a.queue_number, a.created_at
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueueEntry
	for rows.Next() {
		var e QueueEntry
		err := rows.Scan(
			&e.ID,
			&e.PatientID,
			&e.DoctorID,
			&e.Date,
			&e.TimeSlot,
			&e.Reason,
			&e.QueueNumber,
			&e.Status,
			&e.CreatedAt,
			&e.UpdatedAt,
			&e.PatientName,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

func (r *PgRepository) ListPatientHistory(ctx context.Context, patientID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.date, a.time_slot, a.reason, a.queue_number, a.status, a.created_at, a.updated_at,
		       u.name, d.specialization
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN users u ON u.id = d.user_id
		WHERE a.patient_id = $1
		ORDER BY a.date, a.time_slot
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		err := rows.Scan(
			&e.ID,
			&e.PatientID,
			&e.DoctorID,
			&e.Date,
			&e.TimeSlot,
			&e.Reason,
			&e.QueueNumber,
			&e.Status,
			&e.CreatedAt,
			&e.UpdatedAt,
			&e.DoctorName,
			&e.Specialization,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

func (r *PgRepository) ListStalePending(ctx context.Context, before string) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'PENDING'
		  AND date < $1
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}
