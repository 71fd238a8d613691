package availability

import "github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"

// NoScheduleMessage is reported when a doctor does not work on the requested day.
const NoScheduleMessage = "no schedule for this weekday"

// Interval is a half-open span of wall clock minutes [Start, End).
type Interval struct {
	Start model.Clock
	End   model.Clock
}

// SlotInterval is the span occupied by an appointment starting at start.
func SlotInterval(start model.Clock) Interval {
	return Interval{Start: start, End: start.Add(model.SlotMinutes)}
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether c falls within [Start, End).
func (i Interval) Contains(c model.Clock) bool {
	return c >= i.Start && c < i.End
}

// SlotsOverlap reports whether appointments starting at a and b collide.
func SlotsOverlap(a, b model.Clock) bool {
	return SlotInterval(a).Overlaps(SlotInterval(b))
}

// Boundaries lists every slot start in [start, end) in ascending order.
func Boundaries(start, end model.Clock) []model.Clock {
	if end <= start {
		return nil
	}
	out := make([]model.Clock, 0, int(end-start)/model.SlotMinutes+1)
	for t := start; t < end; t = t.Add(model.SlotMinutes) {
		out = append(out, t)
	}
	return out
}

// GenerateSlots returns the bookable slot starts for a day. A nil or disabled
// window yields no slots and NoScheduleMessage. A boundary is removed only
// when an active appointment starts exactly on it.
func GenerateSlots(window *model.AvailabilityWindow, active []model.Appointment) ([]model.Clock, string) {
	if window == nil || !window.Enabled {
		return []model.Clock{}, NoScheduleMessage
	}

	taken := make(map[model.Clock]bool, len(active))
	for _, a := range active {
		if a.Status.IsActive() {
			taken[a.Time] = true
		}
	}

	slots := make([]model.Clock, 0)
	for _, t := range Boundaries(window.Start, window.End) {
		if !taken[t] {
			slots = append(slots, t)
		}
	}
	return slots, ""
}

// OverlapsAny reports whether a slot at start collides with any busy interval.
func OverlapsAny(start model.Clock, busy []Interval) bool {
	slot := SlotInterval(start)
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
