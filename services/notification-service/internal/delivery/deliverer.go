// Package delivery sends rendered notifications over email and SMS to users
// who have contact details on file. It is best effort: failures are logged
// and the in-app notification remains the record.
package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/render"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/storage"
)

// Contacts is implemented by storage.Repository.
type Contacts interface {
	GetContact(ctx context.Context, userID string) (storage.Contact, error)
}

// Which notification types go out on each channel. Everything else stays in-app.
var (
	emailTypes = map[string]bool{
		render.TypeAppointment:          true,
		render.TypeAppointmentConfirmed: true,
		render.TypeAppointmentCancelled: true,
		render.TypeAppointmentReminder:  true,
	}
	smsTypes = map[string]bool{
		render.TypeAppointmentCancelled: true,
		render.TypeAppointmentReminder:  true,
	}
)

type Deliverer struct {
	contacts Contacts
	email    EmailSender
	sms      SMSSender
	logger   *slog.Logger
}

// New returns a Deliverer. A nil sender disables its channel.
func New(contacts Contacts, email EmailSender, sms SMSSender, logger *slog.Logger) *Deliverer {
	return &Deliverer{contacts: contacts, email: email, sms: sms, logger: logger}
}

func (d *Deliverer) Enabled() bool { return d.email != nil || d.sms != nil }

// Result counts messages handed to each channel.
type Result struct {
	Emails int
	SMS    int
}

func (d *Deliverer) Deliver(ctx context.Context, items []render.Notification) Result {
	var res Result
	if !d.Enabled() {
		return res
	}
	for _, n := range items {
		wantEmail := d.email != nil && emailTypes[n.Type]
		wantSMS := d.sms != nil && smsTypes[n.Type]
		if !wantEmail && !wantSMS {
			continue
		}
		c, err := d.contacts.GetContact(ctx, n.UserID)
		if errors.Is(err, storage.ErrNoContact) {
			continue
		}
		if err != nil {
			d.logger.Warn("contact lookup failed", "user_id", n.UserID, "err", err)
			continue
		}
		if wantEmail && c.EmailEnabled && c.Email != "" {
			if err := d.email.Send(ctx, c.Email, n.Title, n.Message); err != nil {
				d.logger.Warn("email delivery failed", "user_id", n.UserID, "appointment_id", n.AppointmentID, "err", err)
			} else {
				res.Emails++
			}
		}
		if wantSMS && c.SMSEnabled && c.Phone != "" {
			if err := d.sms.Send(ctx, c.Phone, n.Title+": "+n.Message); err != nil {
				d.logger.Warn("sms delivery failed", "user_id", n.UserID, "appointment_id", n.AppointmentID, "err", err)
			} else {
				res.SMS++
			}
		}
	}
	return res
}
