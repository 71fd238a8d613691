// Package storage persists doctors, availability windows and appointments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

var ErrNotFound = errors.New("not found")

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
}

// ListFilter narrows ListAppointments. Zero fields match everything.
type ListFilter struct {
	DoctorID  string
	PatientID string
	Status    model.Status
	Kind      model.Kind
	Date      model.Date
	Limit     int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}

// Scope is a unit of mutual exclusion for writers: one party's day.
type Scope struct {
	Party string // "doctor" or "patient"
	ID    string
	Date  model.Date
}

func DoctorDay(id string, d model.Date) Scope  { return Scope{Party: "doctor", ID: id, Date: d} }
func PatientDay(id string, d model.Date) Scope { return Scope{Party: "patient", ID: id, Date: d} }

func (s Scope) Key() string { return s.Party + ":" + s.ID + ":" + s.Date.String() }

// sortedKeys dedupes scopes and orders them so every writer acquires locks in
// the same sequence.
func sortedKeys(scopes []Scope) []string {
	seen := map[string]bool{}
	keys := make([]string, 0, len(scopes))
	for _, s := range scopes {
		k := s.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

type Reader interface {
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	// GetWindow returns ErrNotFound when the doctor has no window that day.
	GetWindow(ctx context.Context, doctorID string, day time.Weekday) (model.AvailabilityWindow, error)
	ListWindows(ctx context.Context, doctorID string) ([]model.AvailabilityWindow, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	// ActiveForDoctor and ActiveForPatient return active appointments on d ordered by time.
	ActiveForDoctor(ctx context.Context, doctorID string, d model.Date) ([]model.Appointment, error)
	ActiveForPatient(ctx context.Context, patientID string, d model.Date) ([]model.Appointment, error)
	// ActiveOn returns every active appointment on d.
	ActiveOn(ctx context.Context, d model.Date) ([]model.Appointment, error)
}

// Tx is a storage transaction. Writes are visible to other callers only after
// the enclosing WithTx returns nil.
type Tx interface {
	Reader
	// LockScopes blocks until the caller holds every scope for the rest of the transaction.
	LockScopes(ctx context.Context, scopes ...Scope) error
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// InsertAppointment fills CreatedAt and UpdatedAt. An overlap with another
	// active appointment of the same doctor or patient fails with
	// conflict.ErrDoctorConflict or conflict.ErrPatientConflict.
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	// UpdateAppointment writes every mutable field and refreshes UpdatedAt.
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
	UpsertDoctor(ctx context.Context, d *model.Doctor) error
	UpsertWindow(ctx context.Context, w model.AvailabilityWindow) error
	DeleteWindow(ctx context.Context, doctorID string, day time.Weekday) error
}

type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
