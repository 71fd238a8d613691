package lifecycle

import "github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"

// EventKind names a notification-worthy change to an appointment.
type EventKind string

const (
	EventCreated     EventKind = "appointment.created"
	EventConfirmed   EventKind = "appointment.confirmed"
	EventStarted     EventKind = "appointment.started"
	EventCompleted   EventKind = "appointment.completed"
	EventCancelled   EventKind = "appointment.cancelled"
	EventRescheduled EventKind = "appointment.rescheduled"
	EventUpdated     EventKind = "appointment.updated"
	EventReminder    EventKind = "appointment.reminder"
)

// EventFor is the event emitted on entering status to.
func EventFor(to model.Status) EventKind {
	switch to {
	case model.StatusConfirmed:
		return EventConfirmed
	case model.StatusInProgress:
		return EventStarted
	case model.StatusCompleted:
		return EventCompleted
	case model.StatusCancelled:
		return EventCancelled
	default:
		return EventCreated
	}
}

// Topic is the versioned event type used on the wire.
func (k EventKind) Topic() string { return string(k) + ".v1" }

// AllEvents lists every kind, in the order consumers subscribe to them.
var AllEvents = []EventKind{
	EventCreated, EventConfirmed, EventStarted, EventCompleted,
	EventCancelled, EventRescheduled, EventUpdated, EventReminder,
}
