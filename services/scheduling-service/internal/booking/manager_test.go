package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/conflict"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/lifecycle"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/meeting"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/notify"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/storage"
)

// monday is 2025-03-10.
var monday = model.Date{Year: 2025, Month: time.March, Day: 10}

func at(h, m int) model.Clock { return model.NewClock(h, m) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Dispatch(_ context.Context, evt notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func (n *recordingNotifier) kinds() []lifecycle.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]lifecycle.EventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeMeetings struct {
	mu          sync.Mutex
	err         error
	provisioned int
	rescheduled int
	cancelled   int
	cancelRefs  []string

	// onProvision runs after the meeting is created, before Provision returns.
	onProvision func(model.Appointment)
}

func (f *fakeMeetings) Provision(_ context.Context, appt model.Appointment, _ model.Doctor) (meeting.Meeting, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return meeting.Meeting{}, f.err
	}
	f.provisioned++
	hook := f.onProvision
	f.mu.Unlock()
	if hook != nil {
		hook(appt)
	}
	return meeting.Meeting{Ref: "evt-" + appt.ID, Link: "https://meet.example.test/" + meeting.RoomID(appt.ID)}, nil
}

func (f *fakeMeetings) Reschedule(context.Context, model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled++
	return f.err
}

func (f *fakeMeetings) Cancel(_ context.Context, appt model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	f.cancelRefs = append(f.cancelRefs, appt.ExternalMeetingRef)
	return f.err
}

type fixture struct {
	store    *storage.MemoryStore
	notifier *recordingNotifier
	meetings *fakeMeetings
	mgr      *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		notifier: &recordingNotifier{},
		meetings: &fakeMeetings{},
	}
	now := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.mgr = NewManager(f.store, f.notifier, f.meetings, logger, Options{Now: func() time.Time { return now }})

	ctx := context.Background()
	for _, d := range []model.Doctor{
		{ID: "doc-a", Name: "Dr. Asha", Available: true},
		{ID: "doc-b", Name: "Dr. Bello", Available: true},
		{ID: "doc-off", Name: "Dr. Away", Available: false},
	} {
		if _, err := f.mgr.UpsertDoctor(ctx, d); err != nil {
			t.Fatalf("upsert doctor: %v", err)
		}
	}
	for _, id := range []string{"doc-a", "doc-b", "doc-off"} {
		w := model.AvailabilityWindow{DoctorID: id, Weekday: time.Monday, Start: at(9, 0), End: at(17, 0), Enabled: true}
		if _, err := f.mgr.SetWindow(ctx, w); err != nil {
			t.Fatalf("set window: %v", err)
		}
	}
	return f
}

func (f *fixture) book(t *testing.T, doctor, patient string, c model.Clock) model.Appointment {
	t.Helper()
	appt, err := f.mgr.Book(context.Background(), BookRequest{
		DoctorID: doctor, PatientID: patient, Kind: model.KindInPerson, Date: monday, Time: c,
	})
	if err != nil {
		t.Fatalf("book %s %s %s: %v", doctor, patient, c, err)
	}
	return appt
}

func TestBook_CreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))

	if appt.Status != model.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", appt.Status)
	}
	got, err := f.mgr.Get(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Time != at(10, 0) || got.Date != monday {
		t.Fatalf("unexpected stored slot %s %s", got.Date, got.Time)
	}
	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != lifecycle.EventCreated {
		t.Fatalf("expected one created event, got %v", kinds)
	}
	if f.notifier.events[0].DoctorName != "Dr. Asha" {
		t.Fatalf("expected doctor name on event, got %q", f.notifier.events[0].DoctorName)
	}
	if f.meetings.provisioned != 0 {
		t.Fatalf("in-person booking must not provision a meeting")
	}
}

func TestBook_ValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := []BookRequest{
		{PatientID: "pat-1", Date: monday, Time: at(10, 0)},
		{DoctorID: "doc-a", PatientID: "pat-1", Time: at(10, 0)},
		{DoctorID: "doc-a", PatientID: "pat-1", Date: monday, Time: model.Clock(24 * 60)},
		{DoctorID: "doc-a", PatientID: "pat-1", Date: monday, Time: at(10, 0), Kind: "phone"},
	}
	for i, req := range cases {
		if _, err := f.mgr.Book(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestBook_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Book(ctx, BookRequest{DoctorID: "doc-off", PatientID: "pat-1", Date: monday, Time: at(10, 0)})
	if !errors.Is(err, conflict.ErrDoctorUnavailable) {
		t.Fatalf("expected ErrDoctorUnavailable, got %v", err)
	}

	past := model.Date{Year: 2025, Month: time.February, Day: 24}
	_, err = f.mgr.Book(ctx, BookRequest{DoctorID: "doc-a", PatientID: "pat-1", Date: past, Time: at(10, 0)})
	if !errors.Is(err, conflict.ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot, got %v", err)
	}

	_, err = f.mgr.Book(ctx, BookRequest{DoctorID: "doc-a", PatientID: "pat-1", Date: monday, Time: at(17, 0)})
	if !errors.Is(err, conflict.ErrOutsideSchedule) {
		t.Fatalf("expected ErrOutsideSchedule at window end, got %v", err)
	}

	_, err = f.mgr.Book(ctx, BookRequest{DoctorID: "doc-missing", PatientID: "pat-1", Date: monday, Time: at(10, 0)})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown doctor, got %v", err)
	}
}

func TestBook_NoWindowOnSunday(t *testing.T) {
	f := newFixture(t)
	sunday := monday.AddDays(-1)
	_, err := f.mgr.Book(context.Background(), BookRequest{DoctorID: "doc-a", PatientID: "pat-1", Date: sunday, Time: at(10, 0)})
	var outside *conflict.OutsideScheduleError
	if !errors.As(err, &outside) {
		t.Fatalf("expected OutsideScheduleError, got %v", err)
	}
	if outside.Weekday != time.Sunday || outside.Window != nil {
		t.Fatalf("unexpected error detail %+v", outside)
	}
}

func TestBook_PatientConflictAcrossDoctors(t *testing.T) {
	f := newFixture(t)
	f.book(t, "doc-a", "pat-1", at(14, 0))

	_, err := f.mgr.Book(context.Background(), BookRequest{DoctorID: "doc-b", PatientID: "pat-1", Date: monday, Time: at(14, 15)})
	if !errors.Is(err, conflict.ErrPatientConflict) {
		t.Fatalf("expected ErrPatientConflict, got %v", err)
	}
}

func TestBook_DoctorConflictOnOverlap(t *testing.T) {
	f := newFixture(t)
	f.book(t, "doc-a", "pat-1", at(10, 0))

	_, err := f.mgr.Book(context.Background(), BookRequest{DoctorID: "doc-a", PatientID: "pat-2", Date: monday, Time: at(10, 29)})
	if !errors.Is(err, conflict.ErrDoctorConflict) {
		t.Fatalf("expected ErrDoctorConflict, got %v", err)
	}
	// Back to back is fine.
	f.book(t, "doc-a", "pat-2", at(10, 30))
}

func TestBook_CancelledSlotIsFree(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))
	if _, err := f.mgr.Cancel(context.Background(), appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.book(t, "doc-a", "pat-2", at(10, 0))
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.mgr.Book(context.Background(), BookRequest{
				DoctorID: "doc-a", PatientID: "pat-" + string(rune('a'+i)), Date: monday, Time: at(11, 0),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, conflict.ErrDoctorConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if ok != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", n-1, ok, conflicts)
	}
	active, err := f.store.ActiveForDoctor(context.Background(), "doc-a", monday)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one stored appointment, got %d", len(active))
	}
}

func TestNoOverlapAfterManyBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patients := []string{"pat-1", "pat-2", "pat-3"}
	doctors := []string{"doc-a", "doc-b"}
	for minute := 9 * 60; minute < 17*60; minute += 10 {
		for i, d := range doctors {
			p := patients[(minute/10+i)%len(patients)]
			_, _ = f.mgr.Book(ctx, BookRequest{DoctorID: d, PatientID: p, Date: monday, Time: model.Clock(minute)})
		}
	}

	assertDisjoint := func(label string, appts []model.Appointment) {
		t.Helper()
		for i := range appts {
			for j := i + 1; j < len(appts); j++ {
				if appts[i].Status.IsActive() && appts[j].Status.IsActive() && (appts[i].Time < appts[j].Time+model.SlotMinutes && appts[j].Time < appts[i].Time+model.SlotMinutes) {
					t.Fatalf("%s: %s and %s overlap", label, appts[i].Time, appts[j].Time)
				}
			}
		}
	}
	for _, d := range doctors {
		appts, err := f.store.ActiveForDoctor(ctx, d, monday)
		if err != nil {
			t.Fatalf("active for doctor: %v", err)
		}
		if len(appts) == 0 {
			t.Fatalf("expected some bookings for %s", d)
		}
		assertDisjoint(d, appts)
	}
	for _, p := range patients {
		appts, err := f.store.ActiveForPatient(ctx, p, monday)
		if err != nil {
			t.Fatalf("active for patient: %v", err)
		}
		assertDisjoint(p, appts)
	}
}

func TestCheck_IsRepeatableAndWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.book(t, "doc-a", "pat-1", at(10, 0))
	req := conflict.Request{DoctorID: "doc-a", PatientID: "pat-2", Date: monday, Time: at(10, 15)}

	first := f.mgr.Check(context.Background(), req)
	second := f.mgr.Check(context.Background(), req)
	if !errors.Is(first, conflict.ErrDoctorConflict) || !errors.Is(second, conflict.ErrDoctorConflict) {
		t.Fatalf("expected doctor conflict twice, got %v and %v", first, second)
	}
	if err := f.mgr.Check(context.Background(), conflict.Request{DoctorID: "doc-a", PatientID: "pat-2", Date: monday, Time: at(12, 0)}); err != nil {
		t.Fatalf("expected free slot, got %v", err)
	}
	appts, _ := f.mgr.List(context.Background(), storage.ListFilter{DoctorID: "doc-a"})
	if len(appts) != 1 {
		t.Fatalf("check must not write, found %d appointments", len(appts))
	}
}

func TestReschedule_IgnoresOwnSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))

	moved, err := f.mgr.Reschedule(context.Background(), appt.ID, monday, at(10, 30))
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Time != at(10, 30) || moved.Status != model.StatusScheduled {
		t.Fatalf("unexpected result %s %s", moved.Time, moved.Status)
	}

	// Overlaps its own previous slot only.
	moved, err = f.mgr.Reschedule(context.Background(), appt.ID, monday, at(10, 15))
	if err != nil {
		t.Fatalf("reschedule onto own slot: %v", err)
	}
	if moved.Time != at(10, 15) {
		t.Fatalf("expected 10:15, got %s", moved.Time)
	}
	kinds := f.notifier.kinds()
	if kinds[len(kinds)-1] != lifecycle.EventRescheduled {
		t.Fatalf("expected rescheduled event last, got %v", kinds)
	}
}

func TestReschedule_RejectsConflictAndKeepsOldSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))
	f.book(t, "doc-a", "pat-2", at(11, 0))

	if _, err := f.mgr.Reschedule(context.Background(), appt.ID, monday, at(11, 15)); !errors.Is(err, conflict.ErrDoctorConflict) {
		t.Fatalf("expected ErrDoctorConflict, got %v", err)
	}
	got, _ := f.mgr.Get(context.Background(), appt.ID)
	if got.Time != at(10, 0) {
		t.Fatalf("failed reschedule must not move appointment, got %s", got.Time)
	}
}

func TestReschedule_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))
	if _, err := f.mgr.Confirm(ctx, appt.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.mgr.Reschedule(ctx, appt.ID, monday, at(12, 0)); err != nil {
		t.Fatalf("confirmed appointments can move: %v", err)
	}
	if _, err := f.mgr.Start(ctx, appt.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.mgr.Reschedule(ctx, appt.ID, monday, at(13, 0)); !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if _, err := f.mgr.Complete(ctx, appt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.mgr.Reschedule(ctx, appt.ID, monday, at(13, 0)); !errors.Is(err, lifecycle.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestTransition_CancelCompletedIsFinalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))

	done, err := f.mgr.Complete(ctx, appt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
	if _, err := f.mgr.Cancel(ctx, appt.ID); !errors.Is(err, lifecycle.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	got, _ := f.mgr.Get(ctx, appt.ID)
	if got.Status != model.StatusCompleted {
		t.Fatalf("status must stay completed, got %s", got.Status)
	}
}

func TestTransition_EmitsEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))
	for _, step := range []func(context.Context, string) (model.Appointment, error){f.mgr.Confirm, f.mgr.Start, f.mgr.Cancel} {
		if _, err := step(ctx, appt.ID); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	want := []lifecycle.EventKind{lifecycle.EventCreated, lifecycle.EventConfirmed, lifecycle.EventStarted, lifecycle.EventCancelled}
	got := f.notifier.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	final, _ := f.mgr.Get(ctx, appt.ID)
	if final.CancelledAt == nil {
		t.Fatalf("expected cancelled_at to be set")
	}
}

func TestTransition_IllegalStep(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))
	if _, err := f.mgr.Start(context.Background(), appt.ID); !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("scheduled appointments must be confirmed before starting, got %v", err)
	}
	if _, err := f.mgr.Confirm(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVideoBooking_ProvisionsMeeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt, err := f.mgr.Book(ctx, BookRequest{DoctorID: "doc-a", PatientID: "pat-1", Kind: model.KindVideo, Date: monday, Time: at(9, 0)})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.ExternalMeetingRef == "" || appt.MeetingLink == "" {
		t.Fatalf("expected meeting details, got %+v", appt)
	}
	stored, _ := f.mgr.Get(ctx, appt.ID)
	if stored.MeetingLink != appt.MeetingLink {
		t.Fatalf("meeting link not persisted")
	}
	if f.notifier.events[0].Appointment.MeetingLink == "" {
		t.Fatalf("created event should carry the meeting link")
	}

	if _, err := f.mgr.Reschedule(ctx, appt.ID, monday, at(9, 30)); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if _, err := f.mgr.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.meetings.provisioned != 1 || f.meetings.rescheduled != 1 || f.meetings.cancelled != 1 {
		t.Fatalf("unexpected meeting calls %+v", f.meetings)
	}
}

func TestVideoBooking_CancelledDuringProvisioningReleasesMeeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.meetings.onProvision = func(appt model.Appointment) {
		if _, err := f.mgr.Cancel(ctx, appt.ID); err != nil {
			t.Errorf("cancel during provisioning: %v", err)
		}
	}

	appt, err := f.mgr.Book(ctx, BookRequest{DoctorID: "doc-a", PatientID: "pat-1", Kind: model.KindVideo, Date: monday, Time: at(9, 0)})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != model.StatusCancelled {
		t.Fatalf("expected the returned appointment to reflect the cancellation, got %s", appt.Status)
	}
	stored, _ := f.mgr.Get(ctx, appt.ID)
	if stored.ExternalMeetingRef != "" || stored.MeetingLink != "" {
		t.Fatalf("meeting must not be attached to a cancelled appointment: %+v", stored)
	}
	if f.meetings.cancelled != 1 || f.meetings.cancelRefs[0] != "evt-"+appt.ID {
		t.Fatalf("expected the provisioned meeting to be cancelled, got %d calls refs=%v", f.meetings.cancelled, f.meetings.cancelRefs)
	}
	if kinds := f.notifier.kinds(); len(kinds) != 1 || kinds[0] != lifecycle.EventCancelled {
		t.Fatalf("expected only the cancellation event, got %v", kinds)
	}
}

func TestJoinRoom_StartsConfirmedVideoAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt, err := f.mgr.Book(ctx, BookRequest{DoctorID: "doc-a", PatientID: "pat-1", Kind: model.KindVideo, Date: monday, Time: at(9, 0)})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.mgr.JoinRoom(ctx, appt.ID); !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("joining before confirmation should be illegal, got %v", err)
	}
	if _, err := f.mgr.Confirm(ctx, appt.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	started, err := f.mgr.JoinRoom(ctx, appt.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if started.Status != model.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", started.Status)
	}
	again, err := f.mgr.JoinRoom(ctx, appt.ID)
	if err != nil || again.Status != model.StatusInProgress {
		t.Fatalf("second join should be a no-op, got %s %v", again.Status, err)
	}

	startEvents := 0
	for _, k := range f.notifier.kinds() {
		if k == lifecycle.EventStarted {
			startEvents++
		}
	}
	if startEvents != 1 {
		t.Fatalf("expected one start event, got kinds %v", f.notifier.kinds())
	}

	if _, err := f.mgr.Complete(ctx, appt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.mgr.JoinRoom(ctx, appt.ID); !errors.Is(err, lifecycle.ErrAlreadyFinalized) {
		t.Fatalf("expected finalized, got %v", err)
	}
}

func TestJoinRoom_RejectsInPerson(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))
	if _, err := f.mgr.JoinRoom(context.Background(), appt.ID); !errors.Is(err, ErrNotVideo) {
		t.Fatalf("expected ErrNotVideo, got %v", err)
	}
}

func TestSideEffectFailuresDoNotFailOperations(t *testing.T) {
	f := newFixture(t)
	f.meetings.err = errors.New("calendar down")
	f.notifier.err = errors.New("broker down")
	ctx := context.Background()

	appt, err := f.mgr.Book(ctx, BookRequest{DoctorID: "doc-a", PatientID: "pat-1", Kind: model.KindVideo, Date: monday, Time: at(9, 0)})
	if err != nil {
		t.Fatalf("book must succeed when side effects fail: %v", err)
	}
	if appt.MeetingLink != "" {
		t.Fatalf("expected no meeting link, got %q", appt.MeetingLink)
	}
	if _, err := f.mgr.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("cancel must succeed when side effects fail: %v", err)
	}
}

func TestUpdateDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, "doc-a", "pat-1", at(10, 0))

	rx := "rest and fluids"
	if _, err := f.mgr.Complete(ctx, appt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := f.mgr.UpdateDetails(ctx, appt.ID, DetailsPatch{Prescription: &rx})
	if err != nil {
		t.Fatalf("prescription after completion: %v", err)
	}
	if got.Prescription != rx {
		t.Fatalf("expected prescription to be stored")
	}
	last := f.notifier.events[len(f.notifier.events)-1]
	if last.Kind != lifecycle.EventUpdated || len(last.Changes) != 1 || last.Changes[0] != "prescription" {
		t.Fatalf("unexpected update event %+v", last)
	}

	reason := "new reason"
	if _, err := f.mgr.UpdateDetails(ctx, appt.ID, DetailsPatch{Reason: &reason}); !errors.Is(err, lifecycle.ErrAlreadyFinalized) {
		t.Fatalf("expected reason to be frozen, got %v", err)
	}
}

func TestSlots_ExcludesBookedStarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.mgr.SetWindow(ctx, model.AvailabilityWindow{DoctorID: "doc-a", Weekday: time.Monday, Start: at(9, 0), End: at(12, 0), Enabled: true}); err != nil {
		t.Fatalf("set window: %v", err)
	}
	f.book(t, "doc-a", "pat-1", at(9, 30))

	list, err := f.mgr.Slots(ctx, "doc-a", monday)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	want := []model.Clock{at(9, 0), at(10, 0), at(10, 30), at(11, 0), at(11, 30)}
	if len(list.Slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, list.Slots)
	}
	for i := range want {
		if list.Slots[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, list.Slots)
		}
	}
	if list.Weekday != "monday" || list.Window == nil {
		t.Fatalf("unexpected slot list %+v", list)
	}

	sunday, err := f.mgr.Slots(ctx, "doc-a", monday.AddDays(-1))
	if err != nil {
		t.Fatalf("slots sunday: %v", err)
	}
	if len(sunday.Slots) != 0 || sunday.Message == "" {
		t.Fatalf("expected empty slots with message, got %+v", sunday)
	}
}

func TestSetWindow_Validates(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.SetWindow(context.Background(), model.AvailabilityWindow{DoctorID: "doc-a", Weekday: time.Tuesday, Start: at(12, 0), End: at(9, 0), Enabled: true})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	_, err = f.mgr.SetWindow(context.Background(), model.AvailabilityWindow{DoctorID: "doc-missing", Weekday: time.Tuesday, Start: at(9, 0), End: at(12, 0), Enabled: true})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetWindow_EndingAtMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.mgr.SetWindow(ctx, model.AvailabilityWindow{DoctorID: "doc-a", Weekday: time.Monday, Start: at(22, 0), End: model.EndOfDay, Enabled: true}); err != nil {
		t.Fatalf("set window: %v", err)
	}
	list, err := f.mgr.Slots(ctx, "doc-a", monday)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(list.Slots) != 4 || list.Slots[3] != at(23, 30) {
		t.Fatalf("expected slots through 23:30, got %v", list.Slots)
	}
	f.book(t, "doc-a", "pat-1", at(23, 30))

	_, err = f.mgr.SetWindow(ctx, model.AvailabilityWindow{DoctorID: "doc-a", Weekday: time.Monday, Start: model.EndOfDay, End: model.EndOfDay, Enabled: true})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a window starting at 24:00, got %v", err)
	}
}

func TestSendReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Fixture clock is 2025-03-01; move it to the Sunday before monday.
	sunday := time.Date(2025, time.March, 9, 18, 0, 0, 0, time.UTC)
	f.mgr.now = func() time.Time { return sunday }

	f.book(t, "doc-a", "pat-1", at(10, 0))
	cancelled := f.book(t, "doc-b", "pat-2", at(10, 0))
	if _, err := f.mgr.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sent, err := f.mgr.SendReminders(ctx)
	if err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}
	if k := f.notifier.kinds(); k[len(k)-1] != lifecycle.EventReminder {
		t.Fatalf("expected reminder event last, got %v", k)
	}
}
