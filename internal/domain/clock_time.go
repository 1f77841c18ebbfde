package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay upper bound of a ClockTime; "24:00" is allowed as a window end
const MinutesPerDay = 24 * 60

// ClockTime wall-clock time of day in minutes since midnight, [0, 1440]
type ClockTime int

// ParseClockTime parses "HH:MM" or "HH:MM:SS" (seconds ignored)
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

// MustClockTime panics on malformed input; for constants and tests
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's location
func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// String formats as "HH:MM"
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant at this time of day on date's calendar day (date's location).
// 24:00 becomes midnight of the following day.
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, date.Location())
}

// inWindow reports whether c is in [start, end), wrapping past midnight when end <= start
func inWindow(c, start, end ClockTime) bool {
	if start == end {
		return false
	}
	if start < end {
		return c >= start && c < end
	}
	return c >= start || c < end
}

// DateOf truncates t to midnight of its calendar day in t's location
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
