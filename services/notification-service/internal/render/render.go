// Package render turns appointment lifecycle events into per-user in-app
// notifications.
package render

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Notification types shown to clients.
const (
	TypeAppointment          = "appointment"
	TypeAppointmentReminder  = "appointment_reminder"
	TypeAppointmentCancelled = "appointment_cancelled"
	TypeAppointmentConfirmed = "appointment_confirmed"
	TypePrescription         = "prescription"
)

// Event is the payload published by scheduling-service.
type Event struct {
	EventType       string    `json:"event_type"`
	AppointmentID   string    `json:"appointment_id"`
	DoctorID        string    `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	PatientID       string    `json:"patient_id"`
	AppointmentType string    `json:"appointment_type"`
	Status          string    `json:"status"`
	ScheduledDate   string    `json:"scheduled_date"`
	ScheduledTime   string    `json:"scheduled_time"`
	MeetingLink     string    `json:"meeting_link,omitempty"`
	Changes         []string  `json:"changes,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func Decode(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if evt.EventType == "" || evt.AppointmentID == "" || evt.DoctorID == "" || evt.PatientID == "" {
		return Event{}, fmt.Errorf("decode event: missing required fields")
	}
	return evt, nil
}

type Notification struct {
	UserID        string
	Title         string
	Message       string
	Type          string
	AppointmentID string
}

// Render returns the notifications for evt. Unknown or silent events yield none.
func Render(evt Event) []Notification {
	doctor := doctorLabel(evt.DoctorName)
	at := clock12(evt.ScheduledTime)
	patient := func(title, message, typ string) Notification {
		return Notification{UserID: evt.PatientID, Title: title, Message: message, Type: typ, AppointmentID: evt.AppointmentID}
	}
	doc := func(title, message, typ string) Notification {
		return Notification{UserID: evt.DoctorID, Title: title, Message: message, Type: typ, AppointmentID: evt.AppointmentID}
	}

	switch strings.TrimSuffix(evt.EventType, ".v1") {
	case "appointment.created":
		return []Notification{
			patient("Appointment Scheduled",
				fmt.Sprintf("Your appointment with %s is scheduled for %s at %s.", doctor, evt.ScheduledDate, at), TypeAppointment),
			doc("New Appointment",
				fmt.Sprintf("You have a new appointment on %s at %s.", evt.ScheduledDate, at), TypeAppointment),
		}
	case "appointment.confirmed":
		return []Notification{
			patient("Appointment Confirmed",
				fmt.Sprintf("Your appointment with %s on %s has been confirmed.", doctor, evt.ScheduledDate), TypeAppointmentConfirmed),
		}
	case "appointment.cancelled":
		return []Notification{
			patient("Appointment Cancelled",
				fmt.Sprintf("Your appointment with %s on %s has been cancelled.", doctor, evt.ScheduledDate), TypeAppointmentCancelled),
			doc("Appointment Cancelled",
				fmt.Sprintf("Appointment on %s at %s has been cancelled.", evt.ScheduledDate, at), TypeAppointmentCancelled),
		}
	case "appointment.completed":
		return []Notification{
			patient("Appointment Completed",
				fmt.Sprintf("Your appointment with %s has been completed.", doctor), TypeAppointment),
		}
	case "appointment.rescheduled":
		return []Notification{
			patient("Appointment Rescheduled",
				fmt.Sprintf("Your appointment with %s has moved to %s at %s.", doctor, evt.ScheduledDate, at), TypeAppointment),
			doc("Appointment Rescheduled",
				fmt.Sprintf("An appointment has moved to %s at %s.", evt.ScheduledDate, at), TypeAppointment),
		}
	case "appointment.updated":
		if slices.Contains(evt.Changes, "prescription") {
			return []Notification{
				patient("Prescription Updated",
					fmt.Sprintf("%s updated the prescription for your appointment on %s.", doctor, evt.ScheduledDate), TypePrescription),
			}
		}
	case "appointment.reminder":
		return []Notification{
			patient("Appointment Reminder",
				fmt.Sprintf("Reminder: You have an appointment with %s tomorrow at %s.", doctor, at), TypeAppointmentReminder),
			doc("Appointment Reminder",
				fmt.Sprintf("Reminder: You have an appointment tomorrow at %s.", at), TypeAppointmentReminder),
		}
	}
	return nil
}

func doctorLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "your doctor"
	}
	if strings.HasPrefix(name, "Dr.") || strings.HasPrefix(name, "Dr ") {
		return name
	}
	return "Dr. " + name
}

// clock12 renders "14:30" as "02:30 PM" and passes anything else through.
func clock12(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("03:04 PM")
}
