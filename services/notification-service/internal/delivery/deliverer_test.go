package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/render"
	"github.com/ruralhealthconnect/telecare/services/notification-service/internal/storage"
)

type contactMap map[string]storage.Contact

func (m contactMap) GetContact(_ context.Context, userID string) (storage.Contact, error) {
	c, ok := m[userID]
	if !ok {
		return storage.Contact{}, storage.ErrNoContact
	}
	return c, nil
}

type sentEmail struct{ to, subject string }

type fakeEmail struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmail) Send(_ context.Context, to, subject, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to, subject})
	return nil
}

type fakeSMS struct{ to []string }

func (f *fakeSMS) Send(_ context.Context, to, _ string) error {
	f.to = append(f.to, to)
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func reminderEvent() render.Event {
	return render.Event{
		EventType: "appointment.reminder.v1", AppointmentID: "a1", DoctorID: "doc-a", DoctorName: "Asha",
		PatientID: "pat-1", ScheduledDate: "2025-03-10", ScheduledTime: "09:30",
	}
}

func TestDeliverRoutesByTypeAndPreference(t *testing.T) {
	contacts := contactMap{
		"pat-1": {UserID: "pat-1", Email: "pat@example.com", Phone: "+2348012345678", EmailEnabled: true, SMSEnabled: true},
		"doc-a": {UserID: "doc-a", Email: "asha@clinic.example", EmailEnabled: false},
	}
	email, sms := &fakeEmail{}, &fakeSMS{}
	d := New(contacts, email, sms, discard)

	res := d.Deliver(context.Background(), render.Render(reminderEvent()))
	if res.Emails != 1 || res.SMS != 1 {
		t.Fatalf("expected one email and one sms, got %+v", res)
	}
	if email.sent[0].to != "pat@example.com" || email.sent[0].subject != "Appointment Reminder" {
		t.Fatalf("unexpected email %+v", email.sent[0])
	}

	confirmed := reminderEvent()
	confirmed.EventType = "appointment.confirmed.v1"
	res = d.Deliver(context.Background(), render.Render(confirmed))
	if res.Emails != 1 || res.SMS != 0 {
		t.Fatalf("confirmation goes by email only, got %+v", res)
	}

	rx := reminderEvent()
	rx.EventType = "appointment.updated.v1"
	rx.Changes = []string{"prescription"}
	if res := d.Deliver(context.Background(), render.Render(rx)); res != (Result{}) {
		t.Fatalf("prescription updates stay in-app, got %+v", res)
	}
}

func TestDeliverIsBestEffort(t *testing.T) {
	contacts := contactMap{"pat-1": {UserID: "pat-1", Email: "pat@example.com", EmailEnabled: true}}
	d := New(contacts, &fakeEmail{err: errors.New("relay down")}, nil, discard)
	if res := d.Deliver(context.Background(), render.Render(reminderEvent())); res.Emails != 0 {
		t.Fatalf("failed sends must not count, got %+v", res)
	}
}

func TestDeliverDisabledWithoutSenders(t *testing.T) {
	d := New(contactMap{}, nil, nil, discard)
	if d.Enabled() {
		t.Fatal("expected delivery disabled")
	}
	if res := d.Deliver(context.Background(), render.Render(reminderEvent())); res != (Result{}) {
		t.Fatalf("expected nothing sent, got %+v", res)
	}
}

func TestBuildMessageStripsHeaderInjection(t *testing.T) {
	msg := buildMessage("from@x", "to@x", "Hi\r\nBcc: evil@x", "line1\nline2", fixedTime)
	if want := "Subject: Hi  Bcc: evil@x\r\n"; !contains(msg, want) {
		t.Fatalf("expected sanitized subject in %q", msg)
	}
	if !contains(msg, "line1\r\nline2\r\n") {
		t.Fatalf("expected CRLF body in %q", msg)
	}
}

var fixedTime = time.Date(2025, time.March, 9, 18, 0, 0, 0, time.UTC)

func contains(s, sub string) bool { return strings.Contains(s, sub) }
