package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/availability"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/conflict"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

// MemoryStore keeps everything in process memory. It backs local runs
// (STORAGE_DRIVER=memory) and tests; it is not shared between replicas.
// Transactions run one at a time against a copy of the state that replaces
// the live state only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memState
	now   func() time.Time
}

type windowKey struct {
	doctorID string
	day      time.Weekday
}

type memState struct {
	doctors      map[string]model.Doctor
	windows      map[windowKey]model.AvailabilityWindow
	appointments map[string]model.Appointment
}

func newMemState() *memState {
	return &memState{
		doctors:      map[string]model.Doctor{},
		windows:      map[windowKey]model.AvailabilityWindow{},
		appointments: map[string]model.Appointment{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	for k, v := range s.windows {
		c.windows[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	return c
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) read() memReader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memReader{s: m.state}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()

	if err := fn(ctx, &memTx{memReader: memReader{s: work}, now: m.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	return m.read().GetDoctor(ctx, id)
}

func (m *MemoryStore) GetWindow(ctx context.Context, doctorID string, day time.Weekday) (model.AvailabilityWindow, error) {
	return m.read().GetWindow(ctx, doctorID, day)
}

func (m *MemoryStore) ListWindows(ctx context.Context, doctorID string) ([]model.AvailabilityWindow, error) {
	return m.read().ListWindows(ctx, doctorID)
}

func (m *MemoryStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return m.read().GetAppointment(ctx, id)
}

func (m *MemoryStore) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	return m.read().ListAppointments(ctx, f)
}

func (m *MemoryStore) ActiveForDoctor(ctx context.Context, doctorID string, d model.Date) ([]model.Appointment, error) {
	return m.read().ActiveForDoctor(ctx, doctorID, d)
}

func (m *MemoryStore) ActiveForPatient(ctx context.Context, patientID string, d model.Date) ([]model.Appointment, error) {
	return m.read().ActiveForPatient(ctx, patientID, d)
}

func (m *MemoryStore) ActiveOn(ctx context.Context, d model.Date) ([]model.Appointment, error) {
	return m.read().ActiveOn(ctx, d)
}

// memReader answers queries from one immutable-for-its-lifetime state.
type memReader struct {
	s *memState
}

func (r memReader) GetDoctor(_ context.Context, id string) (model.Doctor, error) {
	d, ok := r.s.doctors[id]
	if !ok {
		return model.Doctor{}, notFound("doctor", id)
	}
	return d, nil
}

func (r memReader) GetWindow(_ context.Context, doctorID string, day time.Weekday) (model.AvailabilityWindow, error) {
	w, ok := r.s.windows[windowKey{doctorID, day}]
	if !ok {
		return model.AvailabilityWindow{}, notFound("availability window", doctorID+"/"+model.WeekdayName(day))
	}
	return w, nil
}

func (r memReader) ListWindows(_ context.Context, doctorID string) ([]model.AvailabilityWindow, error) {
	out := []model.AvailabilityWindow{}
	for k, w := range r.s.windows {
		if k.doctorID == doctorID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (r memReader) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := r.s.appointments[id]
	if !ok {
		return model.Appointment{}, notFound("appointment", id)
	}
	return a, nil
}

func (r memReader) filter(keep func(model.Appointment) bool) []model.Appointment {
	out := []model.Appointment{}
	for _, a := range r.s.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func byTimeAsc(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Time != appts[j].Time {
			return appts[i].Time < appts[j].Time
		}
		return appts[i].DoctorID < appts[j].DoctorID
	})
}

func (r memReader) ListAppointments(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	out := r.filter(func(a model.Appointment) bool {
		return (f.DoctorID == "" || a.DoctorID == f.DoctorID) &&
			(f.PatientID == "" || a.PatientID == f.PatientID) &&
			(f.Status == "" || a.Status == f.Status) &&
			(f.Kind == "" || a.Kind == f.Kind) &&
			(f.Date.IsZero() || a.Date == f.Date)
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[j].Date.Before(out[i].Date)
		}
		return out[i].Time > out[j].Time
	})
	if n := f.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r memReader) ActiveForDoctor(_ context.Context, doctorID string, d model.Date) ([]model.Appointment, error) {
	out := r.filter(func(a model.Appointment) bool {
		return a.DoctorID == doctorID && a.Date == d && a.Status.IsActive()
	})
	byTimeAsc(out)
	return out, nil
}

func (r memReader) ActiveForPatient(_ context.Context, patientID string, d model.Date) ([]model.Appointment, error) {
	out := r.filter(func(a model.Appointment) bool {
		return a.PatientID == patientID && a.Date == d && a.Status.IsActive()
	})
	byTimeAsc(out)
	return out, nil
}

func (r memReader) ActiveOn(_ context.Context, d model.Date) ([]model.Appointment, error) {
	out := r.filter(func(a model.Appointment) bool {
		return a.Date == d && a.Status.IsActive()
	})
	byTimeAsc(out)
	return out, nil
}

type memTx struct {
	memReader
	now func() time.Time
}

// LockScopes is a no-op: memory transactions are already serialized.
func (t *memTx) LockScopes(context.Context, ...Scope) error { return nil }

func (t *memTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.GetAppointment(ctx, id)
}

// guardOverlap mirrors the exclusion constraints of the Postgres schema.
func (t *memTx) guardOverlap(a model.Appointment) error {
	if !a.Status.IsActive() {
		return nil
	}
	for _, other := range t.s.appointments {
		if other.ID == a.ID || !other.Status.IsActive() || other.Date != a.Date {
			continue
		}
		if !availability.SlotsOverlap(a.Time, other.Time) {
			continue
		}
		if other.DoctorID == a.DoctorID {
			return conflict.ErrDoctorConflict
		}
		if other.PatientID == a.PatientID {
			return conflict.ErrPatientConflict
		}
	}
	return nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if _, ok := t.s.doctors[a.DoctorID]; !ok {
		return notFound("doctor", a.DoctorID)
	}
	if err := t.guardOverlap(*a); err != nil {
		return err
	}
	now := t.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	t.s.appointments[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	prev, ok := t.s.appointments[a.ID]
	if !ok {
		return notFound("appointment", a.ID)
	}
	if err := t.guardOverlap(*a); err != nil {
		return err
	}
	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = t.now().UTC()
	t.s.appointments[a.ID] = *a
	return nil
}

func (t *memTx) UpsertDoctor(_ context.Context, d *model.Doctor) error {
	d.UpdatedAt = t.now().UTC()
	t.s.doctors[d.ID] = *d
	return nil
}

func (t *memTx) UpsertWindow(_ context.Context, w model.AvailabilityWindow) error {
	if _, ok := t.s.doctors[w.DoctorID]; !ok {
		return notFound("doctor", w.DoctorID)
	}
	t.s.windows[windowKey{w.DoctorID, w.Weekday}] = w
	return nil
}

func (t *memTx) DeleteWindow(_ context.Context, doctorID string, day time.Weekday) error {
	k := windowKey{doctorID, day}
	if _, ok := t.s.windows[k]; !ok {
		return notFound("availability window", doctorID+"/"+model.WeekdayName(day))
	}
	delete(t.s.windows, k)
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*memTx)(nil)
	_ Tx    = (*pgTx)(nil)
)
