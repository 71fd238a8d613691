// Package booking serializes check-then-write for appointments and runs the
// lifecycle side effects after each commit.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/conflict"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/lifecycle"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/meeting"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/notify"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

const maxTextLen = 4000

type Options struct {
	// Location is where schedule wall clock times are interpreted. Default UTC.
	Location *time.Location
	Now      func() time.Time
	// SideEffectTimeout bounds each post-commit call. Default 10s.
	SideEffectTimeout time.Duration
}

type Manager struct {
	store    storage.Store
	notifier notify.Dispatcher
	meetings meeting.Provisioner
	logger   *slog.Logger
	tracer   trace.Tracer

	loc               *time.Location
	now               func() time.Time
	sideEffectTimeout time.Duration
}

func NewManager(store storage.Store, notifier notify.Dispatcher, meetings meeting.Provisioner, logger *slog.Logger, opts Options) *Manager {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SideEffectTimeout <= 0 {
		opts.SideEffectTimeout = 10 * time.Second
	}
	if meetings == nil {
		meetings = meeting.Disabled{}
	}
	return &Manager{
		store:             store,
		notifier:          notifier,
		meetings:          meetings,
		logger:            logger,
		tracer:            otel.Tracer("scheduling-service/booking"),
		loc:               opts.Location,
		now:               opts.Now,
		sideEffectTimeout: opts.SideEffectTimeout,
	}
}

// Now is the current instant in the schedule location.
func (m *Manager) Now() time.Time { return m.now().In(m.loc) }

func (m *Manager) Location() *time.Location { return m.loc }

type BookRequest struct {
	DoctorID  string
	PatientID string
	Kind      model.Kind
	Date      model.Date
	Time      model.Clock
	Reason    string
	Notes     string
}

func (r *BookRequest) normalize() error {
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.DoctorID == "" || r.PatientID == "" {
		return invalid("doctor_id and patient_id are required")
	}
	if r.Kind == "" {
		r.Kind = model.KindVideo
	}
	if _, err := model.ParseKind(string(r.Kind)); err != nil {
		return invalid("%v", err)
	}
	if r.Date.IsZero() {
		return invalid("scheduled_date is required")
	}
	if !r.Time.Valid() {
		return invalid("scheduled_time is out of range")
	}
	if len(r.Reason) > maxTextLen || len(r.Notes) > maxTextLen {
		return invalid("reason and notes are limited to %d characters", maxTextLen)
	}
	return nil
}

// snapshot reads everything conflict.Check needs from r.
func (m *Manager) snapshot(ctx context.Context, r storage.Reader, req conflict.Request) (conflict.Snapshot, error) {
	doctor, err := r.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	snap := conflict.Snapshot{Doctor: doctor, Now: m.Now()}

	w, err := r.GetWindow(ctx, req.DoctorID, req.Date.Weekday())
	switch {
	case err == nil:
		snap.Window = &w
	case !errors.Is(err, storage.ErrNotFound):
		return conflict.Snapshot{}, err
	}

	if snap.DoctorAppointments, err = r.ActiveForDoctor(ctx, req.DoctorID, req.Date); err != nil {
		return conflict.Snapshot{}, err
	}
	if snap.PatientAppointments, err = r.ActiveForPatient(ctx, req.PatientID, req.Date); err != nil {
		return conflict.Snapshot{}, err
	}
	return snap, nil
}

// Check previews the verdict for a booking without writing anything.
func (m *Manager) Check(ctx context.Context, req conflict.Request) error {
	if req.DoctorID == "" || req.PatientID == "" || req.Date.IsZero() || !req.Time.Valid() {
		return invalid("doctor_id, patient_id, scheduled_date and scheduled_time are required")
	}
	snap, err := m.snapshot(ctx, m.store, req)
	if err != nil {
		return err
	}
	return conflict.Check(req, snap)
}

// Book creates a scheduled appointment. The checks and the insert run in one
// transaction holding the doctor's and the patient's day.
func (m *Manager) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	ctx, span := m.tracer.Start(ctx, "booking.Book")
	defer span.End()

	if err := req.normalize(); err != nil {
		return model.Appointment{}, err
	}
	span.SetAttributes(
		attribute.String("doctor.id", req.DoctorID),
		attribute.String("appointment.date", req.Date.String()),
		attribute.String("appointment.time", req.Time.String()),
	)

	appt := model.Appointment{
		ID:        uuid.NewString(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Kind:      req.Kind,
		Status:    model.StatusScheduled,
		Date:      req.Date,
		Time:      req.Time,
		Reason:    req.Reason,
		Notes:     req.Notes,
	}
	creq := conflict.Request{DoctorID: req.DoctorID, PatientID: req.PatientID, Date: req.Date, Time: req.Time}

	var doctor model.Doctor
	err := m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.LockScopes(ctx, storage.DoctorDay(req.DoctorID, req.Date), storage.PatientDay(req.PatientID, req.Date)); err != nil {
			return err
		}
		snap, err := m.snapshot(ctx, tx, creq)
		if err != nil {
			return err
		}
		doctor = snap.Doctor
		if err := conflict.Check(creq, snap); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, &appt)
	})
	if err != nil {
		recordErr(span, err)
		return model.Appointment{}, err
	}
	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	m.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.Date.String(), "time", appt.Time.String())

	appt = m.afterCreate(ctx, appt, doctor)
	return appt, nil
}

// Reschedule moves an appointment to a new slot, ignoring its own old slot
// when checking for conflicts. Status is kept.
func (m *Manager) Reschedule(ctx context.Context, id string, date model.Date, at model.Clock) (model.Appointment, error) {
	ctx, span := m.tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer span.End()

	if date.IsZero() || !at.Valid() {
		return model.Appointment{}, invalid("scheduled_date and scheduled_time are required")
	}

	var appt model.Appointment
	err := m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.CanReschedule(cur.Status); err != nil {
			return err
		}
		if err := tx.LockScopes(ctx, storage.DoctorDay(cur.DoctorID, date), storage.PatientDay(cur.PatientID, date)); err != nil {
			return err
		}
		creq := conflict.Request{DoctorID: cur.DoctorID, PatientID: cur.PatientID, Date: date, Time: at, ExcludeID: cur.ID}
		snap, err := m.snapshot(ctx, tx, creq)
		if err != nil {
			return err
		}
		if err := conflict.Check(creq, snap); err != nil {
			return err
		}
		cur.Date, cur.Time = date, at
		if err := tx.UpdateAppointment(ctx, &cur); err != nil {
			return err
		}
		appt = cur
		return nil
	})
	if err != nil {
		recordErr(span, err)
		return model.Appointment{}, err
	}
	m.logger.Info("appointment rescheduled", "appointment_id", appt.ID, "date", appt.Date.String(), "time", appt.Time.String())

	m.sideEffects(ctx, func(ctx context.Context) {
		if appt.Kind == model.KindVideo && appt.ExternalMeetingRef != "" {
			if err := m.meetings.Reschedule(ctx, appt); err != nil {
				m.logger.Warn("meeting update failed", "appointment_id", appt.ID, "err", err)
			}
		}
		m.dispatch(ctx, lifecycle.EventRescheduled, appt, nil)
	})
	return appt, nil
}

func (m *Manager) Confirm(ctx context.Context, id string) (model.Appointment, error) {
	return m.Transition(ctx, id, lifecycle.ActionConfirm)
}

func (m *Manager) Start(ctx context.Context, id string) (model.Appointment, error) {
	return m.Transition(ctx, id, lifecycle.ActionStart)
}

func (m *Manager) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return m.Transition(ctx, id, lifecycle.ActionComplete)
}

// Cancel is a soft delete: the row stays with status cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	return m.Transition(ctx, id, lifecycle.ActionCancel)
}

// Transition applies a lifecycle action and emits the matching event.
func (m *Manager) Transition(ctx context.Context, id string, action lifecycle.Action) (model.Appointment, error) {
	ctx, span := m.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("appointment.action", string(action)),
	))
	defer span.End()

	var appt model.Appointment
	err := m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		to, err := lifecycle.Next(cur.Status, action)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		cur.Status = to
		switch to {
		case model.StatusCancelled:
			cur.CancelledAt = &now
		case model.StatusCompleted:
			cur.CompletedAt = &now
		}
		if err := tx.UpdateAppointment(ctx, &cur); err != nil {
			return err
		}
		appt = cur
		return nil
	})
	if err != nil {
		recordErr(span, err)
		return model.Appointment{}, err
	}
	m.logger.Info("appointment status changed", "appointment_id", appt.ID, "status", appt.Status)

	m.sideEffects(ctx, func(ctx context.Context) {
		if appt.Status == model.StatusCancelled && appt.ExternalMeetingRef != "" {
			if err := m.meetings.Cancel(ctx, appt); err != nil {
				m.logger.Warn("meeting cancellation failed", "appointment_id", appt.ID, "err", err)
			}
		}
		m.dispatch(ctx, lifecycle.EventFor(appt.Status), appt, nil)
	})
	return appt, nil
}

// ErrNotVideo is returned for room operations on in-person appointments.
var ErrNotVideo = errors.New("appointment is not a video consultation")

// JoinRoom records a party entering the video room. Joining a confirmed
// appointment starts the session; joining one already in progress is a no-op.
func (m *Manager) JoinRoom(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := m.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Kind != model.KindVideo {
		return model.Appointment{}, ErrNotVideo
	}
	if appt.Status == model.StatusInProgress {
		return appt, nil
	}
	started, err := m.Transition(ctx, id, lifecycle.ActionStart)
	if errors.Is(err, lifecycle.ErrIllegalTransition) {
		// The other party may have started the session first.
		if cur, gerr := m.store.GetAppointment(ctx, id); gerr == nil && cur.Status == model.StatusInProgress {
			return cur, nil
		}
	}
	return started, err
}

// DetailsPatch updates free-text fields. Nil fields are left unchanged.
type DetailsPatch struct {
	Reason       *string
	Notes        *string
	Prescription *string
}

func (m *Manager) UpdateDetails(ctx context.Context, id string, patch DetailsPatch) (model.Appointment, error) {
	for _, v := range []*string{patch.Reason, patch.Notes, patch.Prescription} {
		if v != nil && len(*v) > maxTextLen {
			return model.Appointment{}, invalid("text fields are limited to %d characters", maxTextLen)
		}
	}

	var (
		appt    model.Appointment
		changes []string
	)
	err := m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		reasonChanged := patch.Reason != nil && *patch.Reason != cur.Reason
		if err := lifecycle.CanEdit(cur.Status, reasonChanged); err != nil {
			return err
		}
		apply := func(field string, dst *string, v *string) {
			if v != nil && *v != *dst {
				*dst = *v
				changes = append(changes, field)
			}
		}
		apply("reason", &cur.Reason, patch.Reason)
		apply("notes", &cur.Notes, patch.Notes)
		apply("prescription", &cur.Prescription, patch.Prescription)
		if len(changes) == 0 {
			appt = cur
			return nil
		}
		if err := tx.UpdateAppointment(ctx, &cur); err != nil {
			return err
		}
		appt = cur
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if len(changes) > 0 {
		m.sideEffects(ctx, func(ctx context.Context) {
			m.dispatch(ctx, lifecycle.EventUpdated, appt, changes)
		})
	}
	return appt, nil
}

func (m *Manager) Get(ctx context.Context, id string) (model.Appointment, error) {
	return m.store.GetAppointment(ctx, id)
}

func (m *Manager) List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	return m.store.ListAppointments(ctx, f)
}

// afterCreate provisions a meeting for video appointments, stores its link
// and announces the booking. It never fails the booking.
func (m *Manager) afterCreate(ctx context.Context, appt model.Appointment, doctor model.Doctor) model.Appointment {
	m.sideEffects(ctx, func(ctx context.Context) {
		if appt.Kind == model.KindVideo {
			appt = m.provisionMeeting(ctx, appt, doctor)
		}
		if appt.Status.IsTerminal() {
			// Already announced by the cancellation.
			return
		}
		m.dispatch(ctx, lifecycle.EventCreated, appt, nil)
	})
	return appt
}

func (m *Manager) provisionMeeting(ctx context.Context, appt model.Appointment, doctor model.Doctor) model.Appointment {
	mt, err := m.meetings.Provision(ctx, appt, doctor)
	if err != nil {
		if errors.Is(err, meeting.ErrUnavailable) {
			m.logger.Info("meeting provisioning skipped", "appointment_id", appt.ID, "err", err)
		} else {
			m.logger.Warn("meeting provisioning failed", "appointment_id", appt.ID, "err", err)
		}
		return appt
	}

	var (
		updated  model.Appointment
		finished bool
	)
	err = m.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, appt.ID)
		if err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			finished, updated = true, cur
			return nil
		}
		cur.ExternalMeetingRef, cur.MeetingLink = mt.Ref, mt.Link
		if err := tx.UpdateAppointment(ctx, &cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		m.logger.Warn("storing meeting link failed", "appointment_id", appt.ID, "err", err)
		return appt
	}
	if finished {
		// Finalized while the meeting was being created; nothing will cancel it later.
		stale := updated
		stale.ExternalMeetingRef, stale.MeetingLink = mt.Ref, mt.Link
		if err := m.meetings.Cancel(ctx, stale); err != nil {
			m.logger.Warn("meeting cancellation failed", "appointment_id", appt.ID, "err", err)
		}
		return updated
	}
	return updated
}

// sideEffects runs fn detached from the caller's cancellation but bounded by
// the side effect timeout.
func (m *Manager) sideEffects(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.sideEffectTimeout)
	defer cancel()
	fn(ctx)
}

func (m *Manager) dispatch(ctx context.Context, kind lifecycle.EventKind, appt model.Appointment, changes []string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Dispatch(ctx, m.event(ctx, kind, appt, changes)); err != nil {
		m.logger.Error("notification dispatch failed", "appointment_id", appt.ID, "event_type", kind, "err", err)
	}
}

func (m *Manager) event(ctx context.Context, kind lifecycle.EventKind, appt model.Appointment, changes []string) notify.Event {
	evt := notify.Event{Kind: kind, Appointment: appt, Changes: changes, OccurredAt: m.now()}
	if d, err := m.store.GetDoctor(ctx, appt.DoctorID); err == nil {
		evt.DoctorName = d.Name
	}
	return evt
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
