package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelinehq/telehealth-queue/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 25)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, doctorIDs, patientIDs); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		userID := uuid.New()
		doctorID := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		consultation := gofakeit.Number(10, 30)

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, phone, role, preferred_language, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'DOCTOR', 'en', now(), now())
		`, userID, name, email, gofakeit.Phone())
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, user_id, specialization, consultation_time, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, doctorID, userID, spec, consultation)
		if err != nil {
			return nil, err
		}

		ids = append(ids, doctorID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	languages := []string{"en", "es", "fr", "de", "hi", "zh"}
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			lang := languages[gofakeit.Number(0, len(languages)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, phone, role, preferred_language, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'PATIENT', $5, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), lang)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}

			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedAppointments fills a few partitions per doctor with confirmed
// appointments carrying dense queue numbers, plus a sprinkle of pending
// requests with none.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctorIDs, patientIDs []uuid.UUID) error {
	log.Println("seeding appointments")

	timeSlots := []string{"09:00-12:00", "14:00-17:00", "18:00-21:00"}
	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	patient := 0
	next := func() uuid.UUID {
		id := patientIDs[patient%len(patientIDs)]
		patient++
		return id
	}

	for _, doctorID := range doctorIDs {
		slot := timeSlots[gofakeit.Number(0, len(timeSlots)-1)]
		booked := gofakeit.Number(2, 5)
		pending := gofakeit.Number(0, 3)

		for n := 1; n <= booked; n++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, patient_id, doctor_id, date, time_slot, reason, queue_number, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 'BOOKED', now(), now())
			`, uuid.New(), next(), doctorID, date, slot, gofakeit.Sentence(4), n)
			if err != nil {
				return err
			}
		}

		for i := 0; i < pending; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, patient_id, doctor_id, date, time_slot, reason, queue_number, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 0, 'PENDING', now(), now())
			`, uuid.New(), next(), doctorID, date, slot, gofakeit.Sentence(4))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("appointments seeded")
	return nil
}
