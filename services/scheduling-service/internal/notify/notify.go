// Package notify hands appointment events to the notification pipeline.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ruralhealthconnect/telecare/libs/db"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/lifecycle"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/outbox"
)

type Event struct {
	Kind        lifecycle.EventKind
	Appointment model.Appointment
	DoctorName  string
	Changes     []string // fields touched by an update
	OccurredAt  time.Time
}

// Dispatcher delivers events. Callers treat failures as non-fatal.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt Event) error
}

// Payload is the JSON body published for every event.
type Payload struct {
	EventType       string    `json:"event_type"`
	AppointmentID   string    `json:"appointment_id"`
	DoctorID        string    `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	PatientID       string    `json:"patient_id"`
	AppointmentType string    `json:"appointment_type"`
	Status          string    `json:"status"`
	ScheduledDate   string    `json:"scheduled_date"`
	ScheduledTime   string    `json:"scheduled_time"`
	MeetingLink     string    `json:"meeting_link,omitempty"`
	Changes         []string  `json:"changes,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewPayload(evt Event) Payload {
	a := evt.Appointment
	return Payload{
		EventType:       evt.Kind.Topic(),
		AppointmentID:   a.ID,
		DoctorID:        a.DoctorID,
		DoctorName:      evt.DoctorName,
		PatientID:       a.PatientID,
		AppointmentType: string(a.Kind),
		Status:          string(a.Status),
		ScheduledDate:   a.Date.String(),
		ScheduledTime:   a.Time.String(),
		MeetingLink:     a.MeetingLink,
		Changes:         evt.Changes,
		OccurredAt:      evt.OccurredAt.UTC(),
	}
}

// OutboxDispatcher records events in outbox_events for the Kafka relay.
type OutboxDispatcher struct {
	pool *db.Pool
	repo *outbox.Repository
}

func NewOutboxDispatcher(pool *db.Pool, repo *outbox.Repository) *OutboxDispatcher {
	return &OutboxDispatcher{pool: pool, repo: repo}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(NewPayload(evt))
	if err != nil {
		return err
	}
	return d.repo.Insert(ctx, d.pool, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   evt.Appointment.ID,
		EventType:     evt.Kind.Topic(),
		Payload:       payload,
	})
}

// LogDispatcher only logs events. Used when no database is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, evt Event) error {
	d.logger.Info("appointment event",
		"event_type", evt.Kind.Topic(),
		"appointment_id", evt.Appointment.ID,
		"doctor_id", evt.Appointment.DoctorID,
		"patient_id", evt.Appointment.PatientID,
		"status", evt.Appointment.Status,
	)
	return nil
}
