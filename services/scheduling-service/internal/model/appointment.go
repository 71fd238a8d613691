package model

import "time"

type Appointment struct {
	ID                 string     `json:"id"`
	DoctorID           string     `json:"doctor_id"`
	PatientID          string     `json:"patient_id"`
	Kind               Kind       `json:"appointment_type"`
	Status             Status     `json:"status"`
	Date               Date       `json:"scheduled_date"`
	Time               Clock      `json:"scheduled_time"`
	Reason             string     `json:"reason"`
	Notes              string     `json:"notes"`
	Prescription       string     `json:"prescription"`
	ExternalMeetingRef string     `json:"external_meeting_ref,omitempty"`
	MeetingLink        string     `json:"meeting_link,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// End is the exclusive end of the appointment's slot.
func (a Appointment) End() Clock { return a.Time.Add(SlotMinutes) }

// Doctor is the slice of a doctor profile the scheduler needs.
type Doctor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Available bool      `json:"is_available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailabilityWindow is a doctor's recurring working hours for one weekday.
type AvailabilityWindow struct {
	DoctorID string       `json:"doctor_id"`
	Weekday  time.Weekday `json:"-"`
	Start    Clock        `json:"start_time"`
	End      Clock        `json:"end_time"`
	Enabled  bool         `json:"is_available"`
}
