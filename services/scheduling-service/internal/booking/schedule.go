package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/availability"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/storage"
)

// SlotList is the bookable view of one doctor's day.
type SlotList struct {
	DoctorID string
	Date     model.Date
	Weekday  string
	Window   *model.AvailabilityWindow
	Slots    []model.Clock
	Message  string
}

// Slots lists the free 30 minute starts for a doctor on date.
func (m *Manager) Slots(ctx context.Context, doctorID string, date model.Date) (SlotList, error) {
	if strings.TrimSpace(doctorID) == "" || date.IsZero() {
		return SlotList{}, invalid("doctor_id and date are required")
	}
	if _, err := m.store.GetDoctor(ctx, doctorID); err != nil {
		return SlotList{}, err
	}
	out := SlotList{DoctorID: doctorID, Date: date, Weekday: model.WeekdayName(date.Weekday())}

	var window *model.AvailabilityWindow
	w, err := m.store.GetWindow(ctx, doctorID, date.Weekday())
	switch {
	case err == nil:
		window = &w
	case !errors.Is(err, storage.ErrNotFound):
		return SlotList{}, err
	}
	active, err := m.store.ActiveForDoctor(ctx, doctorID, date)
	if err != nil {
		return SlotList{}, err
	}
	out.Window = window
	out.Slots, out.Message = availability.GenerateSlots(window, active)
	if out.Slots == nil {
		out.Slots = []model.Clock{}
	}
	return out, nil
}

// UpsertDoctor creates or updates the scheduling copy of a doctor.
func (m *Manager) UpsertDoctor(ctx context.Context, d model.Doctor) (model.Doctor, error) {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	if d.ID == "" || d.Name == "" {
		return model.Doctor{}, invalid("doctor id and name are required")
	}
	err := m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpsertDoctor(ctx, &d)
	})
	if err != nil {
		return model.Doctor{}, err
	}
	m.logger.Info("doctor upserted", "doctor_id", d.ID, "available", d.Available)
	return d, nil
}

func (m *Manager) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	return m.store.GetDoctor(ctx, id)
}

// SetWindow replaces the doctor's window for w.Weekday.
func (m *Manager) SetWindow(ctx context.Context, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if strings.TrimSpace(w.DoctorID) == "" {
		return model.AvailabilityWindow{}, invalid("doctor_id is required")
	}
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return model.AvailabilityWindow{}, invalid("day_of_week is out of range")
	}
	if !w.Start.Valid() || !w.End.ValidEnd() {
		return model.AvailabilityWindow{}, invalid("start_time and end_time must be valid times of day")
	}
	if w.Start >= w.End {
		return model.AvailabilityWindow{}, invalid("start_time must be before end_time")
	}
	err := m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpsertWindow(ctx, w)
	})
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	m.logger.Info("availability window set", "doctor_id", w.DoctorID, "day_of_week", model.WeekdayName(w.Weekday),
		"start", w.Start.String(), "end", w.End.String(), "enabled", w.Enabled)
	return w, nil
}

// DeleteWindow removes a weekday window. Existing appointments are untouched.
func (m *Manager) DeleteWindow(ctx context.Context, doctorID string, day time.Weekday) error {
	return m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.DeleteWindow(ctx, doctorID, day)
	})
}

func (m *Manager) ListWindows(ctx context.Context, doctorID string) ([]model.AvailabilityWindow, error) {
	if _, err := m.store.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return m.store.ListWindows(ctx, doctorID)
}
