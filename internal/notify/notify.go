// Package notify is the best-effort fan-out boundary: queue events for
// live subscribers and email for patients. Everything here runs after the
// owning transaction has committed and must never fail a transition.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// QueueEvent is published to the doctor's live queue channel whenever a
// transition commits.
type QueueEvent struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Status        string    `json:"status"`
	QueueNumber   int       `json:"queue_number,omitempty"`
}

const (
	EventAppointmentBooked  = "APPOINTMENT_BOOKED"
	EventAppointmentUpdated = "APPOINTMENT_UPDATED"
)

// DoctorChannel is the pub/sub channel carrying a doctor's queue events.
func DoctorChannel(doctorID uuid.UUID) string {
	return fmt.Sprintf("queue:doctor:%s", doctorID.String())
}

// Notifier dispatches post-commit notifications.
type Notifier interface {
	PublishQueueUpdate(ctx context.Context, ev QueueEvent) error
	EmailPatient(ctx context.Context, to, subject, body string) error
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type RedisNotifier struct {
	client *redis.Client
	email  EmailSender
	log    zerolog.Logger
}

func NewRedisNotifier(client *redis.Client, email EmailSender, log zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		email:  email,
		log:    log,
	}
}

func (n *RedisNotifier) PublishQueueUpdate(ctx context.Context, ev QueueEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal queue event: %w", err)
	}

	if err := n.client.Publish(ctx, DoctorChannel(ev.DoctorID), payload).Err(); err != nil {
		return fmt.Errorf("publish queue event: %w", err)
	}

	n.log.Debug().
		Str("channel", DoctorChannel(ev.DoctorID)).
		Str("type", ev.Type).
		Str("appointment_id", ev.AppointmentID.String()).
		Msg("queue event published")

	return nil
}

func (n *RedisNotifier) EmailPatient(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return nil
	}
	if err := n.email.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
