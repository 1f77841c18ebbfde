package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/service"
)

// BreakClaims the break operations a sweep needs; *service.BreakService satisfies it
type BreakClaims interface {
	PendingReminders(ctx context.Context, now time.Time) ([]*domain.Break, error)
	Overdue(ctx context.Context, now time.Time) ([]*domain.Break, error)
	MarkReminderSent(ctx context.Context, b *domain.Break) (bool, error)
	MarkSupervisorNotified(ctx context.Context, b *domain.Break) (bool, error)
	Person(ctx context.Context, personID string) (*domain.Person, error)
}

// SweepResult counts of one sweep pass
type SweepResult struct {
	Reminded           int `json:"reminded"`
	SupervisorNotified int `json:"supervisor_notified"`
	Skipped            int `json:"skipped"` // claimed by a concurrent sweep
	NotifyFailures     int `json:"notify_failures"`
}

// Sweeper sends due reminders and escalates overdue breaks. Every break is
// claimed through its flag before anything is sent, so overlapping sweeps
// never notify twice.
type Sweeper struct {
	breaks   BreakClaims
	notifier service.Notifier
	logger   *zap.Logger
}

func NewSweeper(breaks BreakClaims, notifier service.Notifier, logger *zap.Logger) *Sweeper {
	return &Sweeper{breaks: breaks, notifier: notifier, logger: logger}
}

// Run one reminder and overdue pass at now. Notification failures are counted,
// not returned; the error covers listing and claiming only.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	remindErr := s.remind(ctx, now, &res)
	overdueErr := s.escalate(ctx, now, &res)

	if res.Reminded > 0 || res.SupervisorNotified > 0 || res.NotifyFailures > 0 {
		s.logger.Info("Lunch sweep finished",
			zap.Time("now", now),
			zap.Int("reminded", res.Reminded),
			zap.Int("supervisor_notified", res.SupervisorNotified),
			zap.Int("skipped", res.Skipped),
			zap.Int("notify_failures", res.NotifyFailures),
		)
	}
	return res, errors.Join(remindErr, overdueErr)
}

func (s *Sweeper) remind(ctx context.Context, now time.Time, res *SweepResult) error {
	due, err := s.breaks.PendingReminders(ctx, now)
	if err != nil {
		return fmt.Errorf("list pending reminders: %w", err)
	}
	var errs []error
	for _, b := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		claimed, err := s.breaks.MarkReminderSent(ctx, b)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim reminder %s: %w", b.BreakID, err))
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}
		res.Reminded++

		p, err := s.breaks.Person(ctx, b.PersonID)
		if err != nil {
			s.logger.Warn("Reminder recipient not found", zap.String("break_id", b.BreakID), zap.Error(err))
			res.NotifyFailures++
			continue
		}
		minutes := int(b.ScheduledStart.Sub(now).Round(time.Minute) / time.Minute)
		text := fmt.Sprintf("⏰ %s, your lunch starts at %s (in %d min) and lasts until %s.",
			p.FirstName, b.ScheduledStart.Format("15:04"), minutes, b.ScheduledEnd.Format("15:04"))
		if err := s.notifier.NotifyPerson(ctx, p, text); err != nil {
			s.logger.Warn("Reminder delivery failed", zap.String("break_id", b.BreakID), zap.Error(err))
			res.NotifyFailures++
		}
	}
	return errors.Join(errs...)
}

func (s *Sweeper) escalate(ctx context.Context, now time.Time, res *SweepResult) error {
	overdue, err := s.breaks.Overdue(ctx, now)
	if err != nil {
		return fmt.Errorf("list overdue breaks: %w", err)
	}
	var errs []error
	for _, b := range overdue {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		claimed, err := s.breaks.MarkSupervisorNotified(ctx, b)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim overdue %s: %w", b.BreakID, err))
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}
		res.SupervisorNotified++

		name := b.PersonID
		if p, err := s.breaks.Person(ctx, b.PersonID); err == nil {
			name = p.Mention()
		}
		late := int(now.Sub(b.ScheduledEnd) / time.Minute)
		text := fmt.Sprintf("⚠️ %s is overdue from lunch: slot ended at %s, %d min ago.",
			name, b.ScheduledEnd.Format("15:04"), late)
		if err := s.notifier.NotifySupervisors(ctx, text); err != nil {
			s.logger.Warn("Overdue escalation failed", zap.String("break_id", b.BreakID), zap.Error(err))
			res.NotifyFailures++
		}
	}
	return errors.Join(errs...)
}
