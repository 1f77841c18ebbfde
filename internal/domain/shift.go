package domain

import "time"

const (
	DefaultLunchDurationMinutes  = 30
	DefaultMaxConcurrentBreakers = 2
)

// Shift work shift with its lunch window (shifts table)
type Shift struct {
	ShiftID               string    `db:"shift_id"`
	Name                  string    `db:"name"`
	StartTime             ClockTime `db:"start_time"`
	EndTime               ClockTime `db:"end_time"` // may be earlier than StartTime (overnight)
	LunchStartTime        ClockTime `db:"lunch_start_time"`
	LunchEndTime          ClockTime `db:"lunch_end_time"` // 24:00 allowed
	LunchDurationMinutes  int       `db:"lunch_duration_minutes"`
	MaxConcurrentBreakers int       `db:"max_concurrent_breakers"`
	IsActive              bool      `db:"is_active"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// LunchDuration configured duration, defaulting to 30 minutes
func (s *Shift) LunchDuration() time.Duration {
	if s.LunchDurationMinutes <= 0 {
		return DefaultLunchDurationMinutes * time.Minute
	}
	return time.Duration(s.LunchDurationMinutes) * time.Minute
}

// GroupSize concurrent breakers per rotation group, at least 1
func (s *Shift) GroupSize() int {
	if s.MaxConcurrentBreakers <= 0 {
		return DefaultMaxConcurrentBreakers
	}
	return s.MaxConcurrentBreakers
}

// IsOvernight shift end wraps past midnight
func (s *Shift) IsOvernight() bool {
	return s.EndTime < s.StartTime
}

// IsCurrentlyActive now's time of day falls within [start, end), wrap-aware
func (s *Shift) IsCurrentlyActive(now time.Time) bool {
	return inWindow(ClockOf(now), s.StartTime, s.EndTime)
}

// IsLunchTime now's time of day falls within the lunch window, wrap-aware
func (s *Shift) IsLunchTime(now time.Time) bool {
	end := s.LunchEndTime
	if end == MinutesPerDay {
		end = 0
	}
	return inWindow(ClockOf(now), s.LunchStartTime, end)
}

// LunchWindow absolute [start, end) of the lunch window for the shift that
// begins on date. For overnight shifts a lunch start before the shift start
// falls on the following day.
func (s *Shift) LunchWindow(date time.Time) (time.Time, time.Time) {
	day := DateOf(date)
	if s.IsOvernight() && s.LunchStartTime < s.StartTime {
		day = day.AddDate(0, 0, 1)
	}
	start := s.LunchStartTime.On(day)
	end := s.LunchEndTime.On(day)
	if !end.After(start) {
		end = s.LunchEndTime.On(day.AddDate(0, 0, 1))
	}
	return start, end
}

// CanSendMoreToLunch fewer than MaxConcurrentBreakers are currently on break
func (s *Shift) CanSendMoreToLunch(onBreak int) bool {
	return onBreak < s.GroupSize()
}

// ScheduleDate calendar date of the shift occurrence covering now. During the
// early-morning tail of an overnight shift this is the previous day.
func (s *Shift) ScheduleDate(now time.Time) time.Time {
	day := DateOf(now)
	if s.IsOvernight() && ClockOf(now) < s.EndTime {
		return day.AddDate(0, 0, -1)
	}
	return day
}
