package repository

import (
	"context"
	"time"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// SchedulesRepository per-shift daily queues
type SchedulesRepository interface {
	GetSchedule(ctx context.Context, scheduleID string) (*domain.Schedule, error)
	// GetScheduleByDate only the calendar date of date is used
	GetScheduleByDate(ctx context.Context, shiftID string, date time.Time) (*domain.Schedule, error)
	ListSchedulesByDate(ctx context.Context, date time.Time) ([]*domain.Schedule, error)

	// CreateScheduleWithBreaks persists the schedule and its breaks atomically.
	// When a schedule for (date, shift) already exists it is returned with created=false
	// and nothing is written.
	CreateScheduleWithBreaks(ctx context.Context, s *domain.Schedule, breaks []*domain.Break) (sched *domain.Schedule, created bool, err error)

	// CompareAndSwapCursor sets cursor=next only while it still equals expected.
	// ErrConflict when the guard fails, ErrNotFound when the schedule is missing.
	CompareAndSwapCursor(ctx context.Context, scheduleID string, expected, next int) error

	// CompareAndSwapQueue replaces the queue and cursor only while the stored queue equals expected
	CompareAndSwapQueue(ctx context.Context, scheduleID string, expected, queue []string, cursor int) error
}
