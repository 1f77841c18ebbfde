package repository

import (
	"context"
	"time"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// BreakTransition guarded status change.
// At becomes actual_start for Started and actual_end for Completed.
type BreakTransition struct {
	BreakID string
	From    []domain.BreakStatus
	To      domain.BreakStatus
	At      time.Time
	Notes   string // appended when non-empty
}

// BreaksRepository per-person break records; rows are never deleted
type BreaksRepository interface {
	GetBreak(ctx context.Context, breakID string) (*domain.Break, error)
	GetBreakForPerson(ctx context.Context, personID, scheduleID string) (*domain.Break, error)
	// GetStartedBreak the person's break in status started, ErrNotFound when none
	GetStartedBreak(ctx context.Context, personID string) (*domain.Break, error)
	ListBreaksBySchedule(ctx context.Context, scheduleID string) ([]*domain.Break, error)

	// CreateBreak returns the existing row for (person, schedule) instead of duplicating
	CreateBreak(ctx context.Context, b *domain.Break) (*domain.Break, error)

	// ListPendingReminders scheduled, not reminded, scheduled_start in (now, now+lead]
	ListPendingReminders(ctx context.Context, now time.Time, lead time.Duration) ([]*domain.Break, error)
	// ListOverdue started, scheduled_end < now, supervisor not yet notified
	ListOverdue(ctx context.Context, now time.Time) ([]*domain.Break, error)

	// TransitionBreak applies t only while status is in t.From; ErrConflict otherwise.
	// A second started break for the same person is also ErrConflict.
	TransitionBreak(ctx context.Context, t BreakTransition) (*domain.Break, error)
	// RescheduleBreak moves a scheduled, un-reminded break; false when the guard fails
	RescheduleBreak(ctx context.Context, breakID string, start, end time.Time, notes string) (bool, error)
	// RebookBreak moves a scheduled or reminded break back to scheduled with no
	// reminder sent; false once it has started or ended
	RebookBreak(ctx context.Context, breakID string, start, end time.Time, notes string) (bool, error)

	// MarkReminderSent claims the reminder of a scheduled break; false when
	// already claimed or the break has moved past scheduled
	MarkReminderSent(ctx context.Context, breakID string) (bool, error)
	// MarkSupervisorNotified claims the overdue escalation of a started break;
	// false when already claimed or the break has ended
	MarkSupervisorNotified(ctx context.Context, breakID string) (bool, error)
}
