package conflict

import (
	"errors"
	"testing"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

// 2025-03-10 is a Monday.
var monday = model.Date{Year: 2025, Month: time.March, Day: 10}

func baseSnapshot() Snapshot {
	return Snapshot{
		Doctor: model.Doctor{ID: "doc-a", Available: true},
		Window: &model.AvailabilityWindow{
			DoctorID: "doc-a",
			Weekday:  time.Monday,
			Start:    model.NewClock(9, 0),
			End:      model.NewClock(17, 0),
			Enabled:  true,
		},
		Now: time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC),
	}
}

func req(at model.Clock) Request {
	return Request{DoctorID: "doc-a", PatientID: "pat-1", Date: monday, Time: at}
}

func TestCheck_Accepts(t *testing.T) {
	if err := Check(req(model.NewClock(10, 0)), baseSnapshot()); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestCheck_DoctorUnavailableWinsOverEverything(t *testing.T) {
	snap := baseSnapshot()
	snap.Doctor.Available = false
	snap.Window = nil
	snap.Now = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := Check(req(model.NewClock(10, 0)), snap); !errors.Is(err, ErrDoctorUnavailable) {
		t.Fatalf("expected ErrDoctorUnavailable, got %v", err)
	}
}

func TestCheck_PastBeforeSchedule(t *testing.T) {
	snap := baseSnapshot()
	snap.Window = nil
	snap.Now = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	if err := Check(req(model.NewClock(11, 30)), snap); !errors.Is(err, ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot, got %v", err)
	}
}

func TestCheck_NowExactlyAtSlotIsNotPast(t *testing.T) {
	snap := baseSnapshot()
	snap.Now = time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)
	if err := Check(req(model.NewClock(10, 0)), snap); err != nil {
		t.Fatalf("slot starting now should be bookable, got %v", err)
	}
}

func TestCheck_PastUsesScheduleLocation(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	snap := baseSnapshot()
	// 04:30 UTC is 10:30 local: a 10:00 local slot is already past.
	snap.Now = time.Date(2025, time.March, 10, 4, 30, 0, 0, time.UTC).In(loc)
	if err := Check(req(model.NewClock(10, 0)), snap); !errors.Is(err, ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot in local time, got %v", err)
	}
}

func TestCheck_NoWindowOnSunday(t *testing.T) {
	r := req(model.NewClock(10, 0))
	r.Date = monday.AddDays(-1)
	err := Check(r, baseSnapshot())
	var outside *OutsideScheduleError
	if !errors.As(err, &outside) || !errors.Is(err, ErrOutsideSchedule) {
		t.Fatalf("expected OutsideScheduleError, got %v", err)
	}
	if outside.Window != nil || outside.Weekday != time.Sunday {
		t.Fatalf("unexpected payload %+v", outside)
	}
}

func TestCheck_OutsideWindowCarriesBounds(t *testing.T) {
	for _, at := range []model.Clock{model.NewClock(8, 30), model.NewClock(17, 0)} {
		err := Check(req(at), baseSnapshot())
		var outside *OutsideScheduleError
		if !errors.As(err, &outside) {
			t.Fatalf("%s: expected OutsideScheduleError, got %v", at, err)
		}
		if outside.Window == nil || outside.Window.Start.String() != "09:00" || outside.Window.End.String() != "17:00" {
			t.Fatalf("%s: expected window bounds, got %+v", at, outside.Window)
		}
	}
}

func TestCheck_DisabledWindow(t *testing.T) {
	snap := baseSnapshot()
	snap.Window.Enabled = false
	if err := Check(req(model.NewClock(10, 0)), snap); !errors.Is(err, ErrOutsideSchedule) {
		t.Fatalf("expected ErrOutsideSchedule, got %v", err)
	}
}

func TestCheck_DoctorConflictBeforePatientConflict(t *testing.T) {
	snap := baseSnapshot()
	snap.DoctorAppointments = []model.Appointment{{ID: "x", Date: monday, Time: model.NewClock(10, 15), Status: model.StatusConfirmed}}
	snap.PatientAppointments = []model.Appointment{{ID: "y", Date: monday, Time: model.NewClock(10, 0), Status: model.StatusScheduled}}
	if err := Check(req(model.NewClock(10, 0)), snap); !errors.Is(err, ErrDoctorConflict) {
		t.Fatalf("expected ErrDoctorConflict, got %v", err)
	}
}

func TestCheck_PatientConflictAcrossDoctors(t *testing.T) {
	snap := baseSnapshot()
	snap.Doctor.ID = "doc-b"
	snap.Window.DoctorID = "doc-b"
	snap.PatientAppointments = []model.Appointment{{ID: "y", DoctorID: "doc-a", Date: monday, Time: model.NewClock(14, 0), Status: model.StatusScheduled}}
	r := req(model.NewClock(14, 15))
	r.DoctorID = "doc-b"
	if err := Check(r, snap); !errors.Is(err, ErrPatientConflict) {
		t.Fatalf("expected ErrPatientConflict, got %v", err)
	}
}

func TestCheck_InactiveAndExcludedIgnored(t *testing.T) {
	snap := baseSnapshot()
	snap.DoctorAppointments = []model.Appointment{
		{ID: "cancelled", Date: monday, Time: model.NewClock(10, 0), Status: model.StatusCancelled},
		{ID: "self", Date: monday, Time: model.NewClock(10, 0), Status: model.StatusScheduled},
	}
	r := req(model.NewClock(10, 0))
	r.ExcludeID = "self"
	if err := Check(r, snap); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestCheck_AdjacentSlotsDoNotConflict(t *testing.T) {
	snap := baseSnapshot()
	snap.DoctorAppointments = []model.Appointment{{ID: "x", Date: monday, Time: model.NewClock(10, 0), Status: model.StatusScheduled}}
	if err := Check(req(model.NewClock(10, 30)), snap); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestCheck_SameStateSameVerdict(t *testing.T) {
	snap := baseSnapshot()
	snap.DoctorAppointments = []model.Appointment{{ID: "x", Date: monday, Time: model.NewClock(10, 0), Status: model.StatusScheduled}}
	r := req(model.NewClock(10, 10))
	first := Check(r, snap)
	second := Check(r, snap)
	if !errors.Is(first, ErrDoctorConflict) || first != second {
		t.Fatalf("expected identical verdicts, got %v and %v", first, second)
	}
}
