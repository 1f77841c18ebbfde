package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/repository"
)

// BreakService drives the per-break state machine:
// scheduled -> reminded -> started -> completed, and scheduled|reminded -> missed.
type BreakService struct {
	repos    *repository.Repositories
	queue    *QueueService
	notifier Notifier
	events   EventPublisher
	clock    Clock
	logger   *zap.Logger
}

// NewBreakService creates the break lifecycle engine
func NewBreakService(repos *repository.Repositories, queue *QueueService, notifier Notifier, events EventPublisher, clock Clock, logger *zap.Logger) *BreakService {
	return &BreakService{
		repos:    repos,
		queue:    queue,
		notifier: notifier,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// Start moves a scheduled or reminded break to started and puts the person on lunch.
// ErrConflict when the person already has a started break or the break moved on.
func (s *BreakService) Start(ctx context.Context, breakID string) (*domain.Break, error) {
	b, err := s.repos.Breaks.GetBreak(ctx, breakID)
	if err != nil {
		return nil, err
	}
	if started, err := s.repos.Breaks.GetStartedBreak(ctx, b.PersonID); err == nil {
		if started.BreakID == b.BreakID {
			// an earlier start may have left the roster behind
			if err := s.setPersonStatus(ctx, b.PersonID, domain.PersonLunchBreak); err != nil {
				s.logger.Warn("Failed to repair person status", zap.String("person_id", b.PersonID), zap.Error(err))
			}
			return nil, fmt.Errorf("%w: break already started", ErrConflict)
		}
		return nil, fmt.Errorf("%w: person is already on a break", ErrConflict)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get started break: %w", err)
	}
	if !b.CanStart() {
		return nil, fmt.Errorf("%w: break is %s", ErrConflict, b.Status)
	}

	now := s.clock.Now()
	b, err = s.repos.Breaks.TransitionBreak(ctx, repository.BreakTransition{
		BreakID: breakID,
		From:    domain.StartableStatuses,
		To:      domain.BreakStarted,
		At:      now,
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("%w: break could not be started", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("start break: %w", err)
	}

	statusErr := s.setPersonStatus(ctx, b.PersonID, domain.PersonLunchBreak)

	s.logger.Info("Break started", zap.String("break_id", b.BreakID), zap.String("person_id", b.PersonID))
	s.tellSupervisors(ctx, b, func(name string) string {
		return fmt.Sprintf("🍽 %s went to lunch at %s (until %s).", name, now.Format("15:04"), b.ScheduledEnd.Format("15:04"))
	})
	publish(ctx, s.events, s.logger, domain.BreakEvent(domain.EventBreakStarted, now, b))
	if statusErr != nil {
		s.logger.Error("Failed to mark person on lunch", zap.String("person_id", b.PersonID), zap.Error(statusErr))
		return nil, fmt.Errorf("break %s started but person status was not updated: %w", b.BreakID, statusErr)
	}
	return b, nil
}

// End completes a started break, returns the person to active and reports the
// elapsed whole minutes.
func (s *BreakService) End(ctx context.Context, breakID string) (*domain.Break, int, error) {
	now := s.clock.Now()
	b, err := s.repos.Breaks.TransitionBreak(ctx, repository.BreakTransition{
		BreakID: breakID,
		From:    []domain.BreakStatus{domain.BreakStarted},
		To:      domain.BreakCompleted,
		At:      now,
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, 0, fmt.Errorf("%w: break is not started", ErrConflict)
	}
	if err != nil {
		return nil, 0, err
	}

	statusErr := s.setPersonStatus(ctx, b.PersonID, domain.PersonActive)

	minutes := b.DurationMinutes()
	s.logger.Info("Break completed",
		zap.String("break_id", b.BreakID),
		zap.String("person_id", b.PersonID),
		zap.Int("minutes", minutes),
	)
	s.tellSupervisors(ctx, b, func(name string) string {
		return fmt.Sprintf("✅ %s is back from lunch after %d min.", name, minutes)
	})
	ev := domain.BreakEvent(domain.EventBreakCompleted, now, b)
	ev.Data = map[string]any{"minutes": minutes}
	publish(ctx, s.events, s.logger, ev)
	if statusErr != nil {
		s.logger.Error("Failed to mark person active", zap.String("person_id", b.PersonID), zap.Error(statusErr))
		return nil, 0, fmt.Errorf("break %s completed but person status was not updated: %w", b.BreakID, statusErr)
	}
	return b, minutes, nil
}

// setPersonStatus retries the roster update; the break row has already moved
// and cannot be rolled back
func (s *BreakService) setPersonStatus(ctx context.Context, personID string, status domain.PersonStatus) error {
	var err error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err = s.repos.Persons.UpdatePersonStatus(ctx, personID, status)
		if err == nil || errors.Is(err, repository.ErrNotFound) || ctx.Err() != nil {
			return err
		}
		s.logger.Debug("Person status update failed, retrying",
			zap.String("person_id", personID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

// StartForPerson starts the person's break of today's schedule, creating it when missing
func (s *BreakService) StartForPerson(ctx context.Context, personID string) (*domain.Break, error) {
	b, err := s.TodayBreak(ctx, personID)
	if err != nil {
		return nil, err
	}
	return s.Start(ctx, b.BreakID)
}

// EndForPerson ends whichever break the person has running, including one
// that began on the previous schedule day
func (s *BreakService) EndForPerson(ctx context.Context, personID string) (*domain.Break, int, error) {
	b, err := s.repos.Breaks.GetStartedBreak(ctx, personID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: no break in progress", ErrConflict)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get started break: %w", err)
	}
	return s.End(ctx, b.BreakID)
}

// MarkMissed administrative scheduled|reminded -> missed; never triggered by time alone
func (s *BreakService) MarkMissed(ctx context.Context, breakID, notes string) (*domain.Break, error) {
	now := s.clock.Now()
	b, err := s.repos.Breaks.TransitionBreak(ctx, repository.BreakTransition{
		BreakID: breakID,
		From:    domain.StartableStatuses,
		To:      domain.BreakMissed,
		At:      now,
		Notes:   notes,
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("%w: only scheduled or reminded breaks can be missed", ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Break marked missed", zap.String("break_id", b.BreakID), zap.String("person_id", b.PersonID))
	publish(ctx, s.events, s.logger, domain.BreakEvent(domain.EventBreakMissed, now, b))
	return b, nil
}

// MarkReminderSent claims the reminder for b; false when another sweep got it first
func (s *BreakService) MarkReminderSent(ctx context.Context, b *domain.Break) (bool, error) {
	claimed, err := s.repos.Breaks.MarkReminderSent(ctx, b.BreakID)
	if err != nil || !claimed {
		return false, err
	}
	publish(ctx, s.events, s.logger, domain.BreakEvent(domain.EventBreakReminded, s.clock.Now(), b))
	return true, nil
}

// MarkSupervisorNotified claims the overdue escalation for b
func (s *BreakService) MarkSupervisorNotified(ctx context.Context, b *domain.Break) (bool, error) {
	claimed, err := s.repos.Breaks.MarkSupervisorNotified(ctx, b.BreakID)
	if err != nil || !claimed {
		return false, err
	}
	publish(ctx, s.events, s.logger, domain.BreakEvent(domain.EventBreakOverdue, s.clock.Now(), b))
	return true, nil
}

// PendingReminders breaks due for a reminder at now whose person is still queued
func (s *BreakService) PendingReminders(ctx context.Context, now time.Time) ([]*domain.Break, error) {
	candidates, err := s.repos.Breaks.ListPendingReminders(ctx, now, domain.ReminderLead)
	if err != nil {
		return nil, err
	}
	schedules := map[string]*domain.Schedule{}
	out := candidates[:0]
	for _, b := range candidates {
		if !b.ShouldRemind(now) {
			continue
		}
		sched, ok := schedules[b.ScheduleID]
		if !ok {
			if sched, err = s.repos.Schedules.GetSchedule(ctx, b.ScheduleID); err != nil {
				return nil, fmt.Errorf("get schedule of break %s: %w", b.BreakID, err)
			}
			schedules[b.ScheduleID] = sched
		}
		if sched.Contains(b.PersonID) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Overdue started breaks past their end that supervisors have not heard about
func (s *BreakService) Overdue(ctx context.Context, now time.Time) ([]*domain.Break, error) {
	candidates, err := s.repos.Breaks.ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, b := range candidates {
		if b.IsOverdue(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

// TodayBreak the person's break on today's schedule. A queued person without a
// break row gets one at their current slot.
func (s *BreakService) TodayBreak(ctx context.Context, personID string) (*domain.Break, error) {
	if _, err := s.repos.Persons.GetPerson(ctx, personID); err != nil {
		return nil, err
	}
	schedules, err := s.queue.TodaySchedules(ctx)
	if err != nil {
		return nil, err
	}
	for _, sched := range schedules {
		if !sched.Contains(personID) {
			continue
		}
		b, err := s.repos.Breaks.GetBreakForPerson(ctx, personID, sched.ScheduleID)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("get break: %w", err)
		}
		return s.queue.ensureBreak(ctx, sched, nil, personID)
	}
	return nil, fmt.Errorf("%w: person is not in today's lunch queue", ErrNotFound)
}

// Person roster lookup for notification texts
func (s *BreakService) Person(ctx context.Context, personID string) (*domain.Person, error) {
	return s.repos.Persons.GetPerson(ctx, personID)
}

func (s *BreakService) tellSupervisors(ctx context.Context, b *domain.Break, text func(name string) string) {
	name := b.PersonID
	if p, err := s.repos.Persons.GetPerson(ctx, b.PersonID); err == nil {
		name = p.Mention()
	}
	if err := s.notifier.NotifySupervisors(ctx, text(name)); err != nil {
		s.logger.Warn("Supervisor notification failed", zap.String("break_id", b.BreakID), zap.Error(err))
	}
}
