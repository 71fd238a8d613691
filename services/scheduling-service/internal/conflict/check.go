// Package conflict decides whether a proposed appointment may be written.
//
// Check is a pure function of its Snapshot: the same request against the same
// state always yields the same verdict. Callers that need the verdict to hold
// at write time must build the snapshot inside the transaction that writes.
package conflict

import (
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/availability"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

type Request struct {
	DoctorID  string
	PatientID string
	Date      model.Date
	Time      model.Clock
	// ExcludeID skips the appointment being rescheduled.
	ExcludeID string
}

// Snapshot is the state a verdict is computed from.
type Snapshot struct {
	Doctor model.Doctor
	// Window is the doctor's window for the request's weekday, nil if none.
	Window *model.AvailabilityWindow
	// DoctorAppointments and PatientAppointments are the appointments on the
	// request's date for each party. Inactive ones are ignored.
	DoctorAppointments  []model.Appointment
	PatientAppointments []model.Appointment
	// Now is the current instant in the schedule's location.
	Now time.Time
}

// Check runs the checks in order and returns the first failure.
func Check(req Request, snap Snapshot) error {
	if !snap.Doctor.Available {
		return ErrDoctorUnavailable
	}

	if req.Date.At(req.Time, snap.Now.Location()).Before(snap.Now) {
		return ErrPastSlot
	}

	weekday := req.Date.Weekday()
	w := snap.Window
	if w == nil || !w.Enabled || w.Weekday != weekday {
		return &OutsideScheduleError{Weekday: weekday}
	}
	if !(availability.Interval{Start: w.Start, End: w.End}).Contains(req.Time) {
		return &OutsideScheduleError{Weekday: weekday, Window: w}
	}

	if collides(req, snap.DoctorAppointments) {
		return ErrDoctorConflict
	}
	if collides(req, snap.PatientAppointments) {
		return ErrPatientConflict
	}
	return nil
}

func collides(req Request, appts []model.Appointment) bool {
	for _, a := range appts {
		if a.ID != "" && a.ID == req.ExcludeID {
			continue
		}
		if !a.Status.IsActive() || a.Date != req.Date {
			continue
		}
		if availability.SlotsOverlap(req.Time, a.Time) {
			return true
		}
	}
	return false
}
