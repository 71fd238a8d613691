package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseWeekday accepts English day names ("monday", "Mon") or an ISO number
// where 1 is Monday and 7 is Sunday.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 7 {
			return 0, fmt.Errorf("invalid weekday %q: want 1 (Monday) through 7 (Sunday)", s)
		}
		return time.Weekday(n % 7), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

func WeekdayName(d time.Weekday) string { return strings.ToLower(d.String()) }
