package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/lifecycle"
	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

func sampleEvent() Event {
	return Event{
		Kind: lifecycle.EventConfirmed,
		Appointment: model.Appointment{
			ID: "a1", DoctorID: "d1", PatientID: "p1", Kind: model.KindVideo, Status: model.StatusConfirmed,
			Date: model.Date{Year: 2026, Month: time.March, Day: 2}, Time: model.NewClock(14, 30),
		},
		DoctorName: "Ada Osei",
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewPayload(t *testing.T) {
	p := NewPayload(sampleEvent())
	if p.EventType != "appointment.confirmed.v1" || p.ScheduledTime != "14:30" || p.ScheduledDate != "2026-03-02" {
		t.Fatalf("unexpected payload %+v", p)
	}
	b, _ := json.Marshal(p)
	if !strings.Contains(string(b), `"doctor_name":"Ada Osei"`) {
		t.Fatalf("doctor name missing from %s", b)
	}
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := d.Dispatch(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(buf.String(), `"appointment_id":"a1"`) {
		t.Fatalf("expected appointment id in log, got %s", buf.String())
	}
}
