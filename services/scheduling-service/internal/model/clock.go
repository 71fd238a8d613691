package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Clock is a wall clock time of day, stored as minutes since midnight.
type Clock int

const (
	minutesPerDay = 24 * 60

	// SlotMinutes is the fixed length of every appointment.
	SlotMinutes = 30
)

// EndOfDay is "24:00". It is only valid as the end of a window.
const EndOfDay = Clock(minutesPerDay)

// ParseClock accepts "15:04" and "15:04:05"; seconds are dropped.
// "24:00" parses to EndOfDay.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return EndOfDay, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClock(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
}

func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Add shifts c by minutes. Minute overflow carries into the hour.
func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

func (c Clock) Valid() bool { return c >= 0 && c < minutesPerDay }

// ValidEnd reports whether c can close a window, which allows EndOfDay.
func (c Clock) ValidEnd() bool { return c > 0 && c <= EndOfDay }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Kitchen renders 12-hour time, e.g. "02:30 PM".
func (c Clock) Kitchen() string {
	return time.Date(2000, 1, 1, c.Hour(), c.Minute(), 0, 0, time.UTC).Format("03:04 PM")
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
