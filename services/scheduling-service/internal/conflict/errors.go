package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

var (
	ErrDoctorUnavailable = errors.New("doctor is not available for appointments")
	ErrPastSlot          = errors.New("cannot book appointments in the past")
	ErrOutsideSchedule   = errors.New("requested time is outside the doctor's schedule")
	ErrDoctorConflict    = errors.New("doctor already has an appointment at this time")
	ErrPatientConflict   = errors.New("patient already has an appointment at this time")
)

// OutsideScheduleError carries the window the request missed so clients can
// show the bookable range. Window is nil when the doctor does not work that day.
type OutsideScheduleError struct {
	Weekday time.Weekday
	Window  *model.AvailabilityWindow
}

func (e *OutsideScheduleError) Error() string {
	if e.Window == nil {
		return fmt.Sprintf("doctor is not available on %s", e.Weekday)
	}
	return fmt.Sprintf("appointment time must be between %s and %s", e.Window.Start, e.Window.End)
}

func (e *OutsideScheduleError) Unwrap() error { return ErrOutsideSchedule }
