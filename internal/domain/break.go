package domain

import (
	"database/sql"
	"time"
)

// ReminderLead how long before scheduled start a reminder becomes due
const ReminderLead = 5 * time.Minute

// BreakStatus break lifecycle state
type BreakStatus string

const (
	BreakScheduled BreakStatus = "scheduled"
	BreakReminded  BreakStatus = "reminded"
	BreakStarted   BreakStatus = "started"
	BreakCompleted BreakStatus = "completed"
	BreakMissed    BreakStatus = "missed"
)

// StartableStatuses sources of the start and missed transitions
var StartableStatuses = []BreakStatus{BreakScheduled, BreakReminded}

// Break one person's lunch break within a schedule (breaks table)
type Break struct {
	BreakID            string         `db:"break_id"`
	PersonID           string         `db:"person_id"`
	ScheduleID         string         `db:"schedule_id"`
	ScheduledStart     time.Time      `db:"scheduled_start"`
	ScheduledEnd       time.Time      `db:"scheduled_end"`
	ActualStart        sql.NullTime   `db:"actual_start"`
	ActualEnd          sql.NullTime   `db:"actual_end"`
	Status             BreakStatus    `db:"status"`
	ReminderSent       bool           `db:"reminder_sent"`
	SupervisorNotified bool           `db:"supervisor_notified"`
	Notes              sql.NullString `db:"notes"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

// ShouldRemind not yet reminded, still scheduled, and now in [start-5m, start)
func (b *Break) ShouldRemind(now time.Time) bool {
	if b.ReminderSent || b.Status != BreakScheduled {
		return false
	}
	return !now.Before(b.ScheduledStart.Add(-ReminderLead)) && now.Before(b.ScheduledStart)
}

// IsOverdue started and now past scheduled end
func (b *Break) IsOverdue(now time.Time) bool {
	return b.Status == BreakStarted && now.After(b.ScheduledEnd)
}

// CanStart status is scheduled or reminded
func (b *Break) CanStart() bool {
	return b.Status == BreakScheduled || b.Status == BreakReminded
}

// IsActive not yet completed or missed
func (b *Break) IsActive() bool {
	return b.Status == BreakScheduled || b.Status == BreakReminded || b.Status == BreakStarted
}

// DurationMinutes whole minutes between actual start and end, 0 until both are set
func (b *Break) DurationMinutes() int {
	if !b.ActualStart.Valid || !b.ActualEnd.Valid {
		return 0
	}
	return int(b.ActualEnd.Time.Sub(b.ActualStart.Time) / time.Minute)
}

// ScheduledDurationMinutes planned slot length in minutes
func (b *Break) ScheduledDurationMinutes() int {
	return int(b.ScheduledEnd.Sub(b.ScheduledStart) / time.Minute)
}
