package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carelinehq/telehealth-queue/internal/appointment"
	"github.com/carelinehq/telehealth-queue/internal/auth"
)

// Service is the appointment surface the handlers depend on, implemented
// by *appointment.Service.
type Service interface {
	Book(ctx context.Context, actor appointment.Actor, req appointment.BookRequest) (*appointment.Appointment, error)
	Confirm(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Transition(ctx context.Context, actor appointment.Actor, id uuid.UUID, status appointment.Status) (*appointment.Appointment, error)
	DoctorQueue(ctx context.Context, actor appointment.Actor) ([]appointment.QueueEntry, error)
	PatientHistory(ctx context.Context, actor appointment.Actor) ([]appointment.HistoryEntry, error)
	Doctors(ctx context.Context) ([]appointment.DoctorProfile, error)
}

type RouterConfig struct {
	Service   Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret string
	Env       string
	Version   string
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public doctor directory
	r.Get("/doctors", listDoctorsHandler(cfg.Service))

	// Appointment endpoints require an authenticated identity; role and
	// ownership rules live in the service.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret, func(w http.ResponseWriter, msg string) {
			writeError(w, http.StatusUnauthorized, "unauthorized", msg)
		}))

		r.Post("/appointments", bookAppointmentHandler(cfg.Service))
		r.Get("/appointments/doctor", doctorQueueHandler(cfg.Service))
		r.Get("/appointments/patient", patientHistoryHandler(cfg.Service))
		r.Patch("/appointments/{id}/status", updateStatusHandler(cfg.Service))
		r.Patch("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}/deny", denyAppointmentHandler(cfg.Service))
	})

	return r
}
