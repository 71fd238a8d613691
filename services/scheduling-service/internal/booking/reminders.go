package booking

import (
	"context"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/lifecycle"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

// DueTomorrow returns active appointments on the day after today in the
// schedule location.
func (m *Manager) DueTomorrow(ctx context.Context) ([]model.Appointment, error) {
	tomorrow := model.DateOf(m.Now()).AddDays(1)
	return m.store.ActiveOn(ctx, tomorrow)
}

// SendReminders emits a reminder event for every appointment due tomorrow and
// returns how many were dispatched. A failed dispatch is logged and skipped.
func (m *Manager) SendReminders(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "booking.SendReminders")
	defer span.End()

	due, err := m.DueTomorrow(ctx)
	if err != nil {
		recordErr(span, err)
		return 0, err
	}
	sent := 0
	for _, appt := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if m.notifier == nil {
			break
		}
		evt := m.event(ctx, lifecycle.EventReminder, appt, nil)
		if err := m.notifier.Dispatch(ctx, evt); err != nil {
			m.logger.Error("reminder dispatch failed", "appointment_id", appt.ID, "err", err)
			continue
		}
		sent++
	}
	m.logger.Info("reminders sent", "due", len(due), "sent", sent)
	return sent, nil
}
