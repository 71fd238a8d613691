// Package meeting provisions remote calendar events with video links for
// video appointments.
package meeting

import (
	"context"
	"errors"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

// ErrUnavailable means no provider is configured or it could not be reached.
var ErrUnavailable = errors.New("meeting provider unavailable")

type Meeting struct {
	Ref  string
	Link string
}

type Provisioner interface {
	Provision(ctx context.Context, appt model.Appointment, doctor model.Doctor) (Meeting, error)
	Reschedule(ctx context.Context, appt model.Appointment) error
	Cancel(ctx context.Context, appt model.Appointment) error
}

// RoomID is the signaling room for an appointment's video call.
func RoomID(appointmentID string) string {
	return "room_" + appointmentID
}

// Disabled is used when no provider is configured.
type Disabled struct{}

func (Disabled) Provision(context.Context, model.Appointment, model.Doctor) (Meeting, error) {
	return Meeting{}, ErrUnavailable
}

func (Disabled) Reschedule(context.Context, model.Appointment) error { return ErrUnavailable }

func (Disabled) Cancel(context.Context, model.Appointment) error { return ErrUnavailable }
