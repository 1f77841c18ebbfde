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

// QueueService builds daily schedules and rotates their groups.
// Supervisor gating is the caller's job.
type QueueService struct {
	repos    *repository.Repositories
	notifier Notifier
	events   EventPublisher
	clock    Clock
	logger   *zap.Logger
}

// NewQueueService creates the queue builder and rotation engine
func NewQueueService(repos *repository.Repositories, notifier Notifier, events EventPublisher, clock Clock, logger *zap.Logger) *QueueService {
	return &QueueService{
		repos:    repos,
		notifier: notifier,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// BuildOrGet returns the schedule of shift on date, building it on first call.
// explicitIDs, when non-empty, replaces the roster-derived eligible set.
func (s *QueueService) BuildOrGet(ctx context.Context, shift *domain.Shift, date time.Time, explicitIDs []string) (*domain.Schedule, error) {
	date = domain.DateOf(date.In(s.clock.Now().Location()))

	existing, err := s.repos.Schedules.GetScheduleByDate(ctx, shift.ShiftID, date)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	queue, err := s.eligible(ctx, shift, explicitIDs)
	if err != nil {
		return nil, err
	}

	groupSize := shift.GroupSize()
	breaks := make([]*domain.Break, 0, len(queue))
	clamped := 0
	for i, personID := range queue {
		start, end, wasClamped := domain.SlotFor(shift, date, i, groupSize)
		b := &domain.Break{
			PersonID:       personID,
			ScheduledStart: start,
			ScheduledEnd:   end,
			Status:         domain.BreakScheduled,
		}
		if wasClamped {
			clamped++
			b.Notes = domain.NullString(domain.SlotClampedNote)
		}
		breaks = append(breaks, b)
	}

	sched, created, err := s.repos.Schedules.CreateScheduleWithBreaks(ctx, &domain.Schedule{
		Date:      date,
		ShiftID:   shift.ShiftID,
		Queue:     queue,
		Cursor:    0,
		GroupSize: groupSize,
		IsActive:  true,
	}, breaks)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	if !created {
		return sched, nil
	}

	s.logger.Info("Lunch schedule built",
		zap.String("schedule_id", sched.ScheduleID),
		zap.String("shift", shift.Name),
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("operators", len(queue)),
		zap.Int("group_size", groupSize),
		zap.Int("clamped", clamped),
	)
	ev := domain.NewEvent(domain.EventScheduleBuilt, s.clock.Now())
	ev.ScheduleID = sched.ScheduleID
	ev.Data = map[string]any{"shift_id": shift.ShiftID, "operators": len(queue), "clamped": clamped}
	publish(ctx, s.events, s.logger, ev)

	if clamped > 0 {
		text := fmt.Sprintf("⚠️ Lunch queue for %s on %s does not fit the %s-%s window: %d operator(s) were squeezed into the last slot.",
			shift.Name, date.Format("2006-01-02"), shift.LunchStartTime, shift.LunchEndTime, clamped)
		if err := s.notifier.NotifySupervisors(ctx, text); err != nil {
			s.logger.Warn("Overflow notification failed", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
		}
	}
	return sched, nil
}

// eligible explicit ids (deduplicated, unknown ids skipped) or the shift's available operators
func (s *QueueService) eligible(ctx context.Context, shift *domain.Shift, explicitIDs []string) ([]string, error) {
	if len(explicitIDs) > 0 {
		ids := dedupe(explicitIDs)
		persons, err := s.repos.Persons.ListPersonsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load explicit operators: %w", err)
		}
		known := make(map[string]bool, len(persons))
		for _, p := range persons {
			known[p.PersonID] = true
		}
		queue := make([]string, 0, len(ids))
		for _, id := range ids {
			if !known[id] {
				s.logger.Warn("Skipping unknown person in explicit queue", zap.String("person_id", id))
				continue
			}
			queue = append(queue, id)
		}
		return queue, nil
	}

	persons, err := s.repos.Persons.ListPersons(ctx, repository.PersonsFilter{
		Role:          domain.RoleOperator,
		Status:        domain.PersonActive,
		ShiftID:       shift.ShiftID,
		AvailableOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	queue := make([]string, 0, len(persons))
	for _, p := range persons {
		queue = append(queue, p.PersonID)
	}
	return queue, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// BuildOrGetToday schedule of the shift occurrence covering now
func (s *QueueService) BuildOrGetToday(ctx context.Context, shiftID string) (*domain.Schedule, error) {
	shift, err := s.repos.Shifts.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if !shift.IsActive {
		return nil, fmt.Errorf("%w: shift %s is inactive", ErrInvalidArgument, shift.Name)
	}
	return s.BuildOrGet(ctx, shift, shift.ScheduleDate(s.clock.Now()), nil)
}

// BuildTodayForActiveShifts daily job; one failing shift does not stop the others
func (s *QueueService) BuildTodayForActiveShifts(ctx context.Context) ([]*domain.Schedule, error) {
	shifts, err := s.repos.Shifts.ListShifts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	var (
		out  []*domain.Schedule
		errs []error
	)
	now := s.clock.Now()
	for _, shift := range shifts {
		sched, err := s.BuildOrGet(ctx, shift, shift.ScheduleDate(now), nil)
		if err != nil {
			s.logger.Error("Daily schedule build failed", zap.String("shift_id", shift.ShiftID), zap.Error(err))
			errs = append(errs, fmt.Errorf("shift %s: %w", shift.ShiftID, err))
			continue
		}
		out = append(out, sched)
	}
	return out, errors.Join(errs...)
}

// TodaySchedules existing schedules of the active shifts' current occurrences
func (s *QueueService) TodaySchedules(ctx context.Context) ([]*domain.Schedule, error) {
	shifts, err := s.repos.Shifts.ListShifts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	now := s.clock.Now()
	// overnight shifts in their early-morning tail belong to yesterday's date
	wanted := map[string]map[string]bool{}
	var dates []time.Time
	for _, shift := range shifts {
		date := shift.ScheduleDate(now)
		key := date.Format("2006-01-02")
		if wanted[key] == nil {
			wanted[key] = map[string]bool{}
			dates = append(dates, date)
		}
		wanted[key][shift.ShiftID] = true
	}

	out := []*domain.Schedule{}
	for _, date := range dates {
		schedules, err := s.repos.Schedules.ListSchedulesByDate(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("list schedules: %w", err)
		}
		for _, sched := range schedules {
			if wanted[date.Format("2006-01-02")][sched.ShiftID] {
				out = append(out, sched)
			}
		}
	}
	return out, nil
}

// Reorder replaces the queue and resets the cursor. Duplicate or unknown ids are rejected.
// Every break not yet started moves to the slot of its new position.
func (s *QueueService) Reorder(ctx context.Context, scheduleID string, ids []string) (*domain.Schedule, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: queue must not be empty", ErrInvalidArgument)
	}
	if len(dedupe(ids)) != len(ids) {
		return nil, fmt.Errorf("%w: queue contains duplicate or empty ids", ErrInvalidArgument)
	}
	persons, err := s.repos.Persons.ListPersonsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load persons: %w", err)
	}
	if len(persons) != len(ids) {
		return nil, fmt.Errorf("%w: queue references unknown persons", ErrInvalidArgument)
	}

	sched, _, err := s.updateQueue(ctx, scheduleID, func(*domain.Schedule) ([]string, int, bool) {
		return ids, 0, true
	})
	if err != nil {
		return nil, err
	}

	s.rebookQueue(ctx, sched)
	ev := domain.NewEvent(domain.EventScheduleReordered, s.clock.Now())
	ev.ScheduleID = sched.ScheduleID
	ev.Data = map[string]any{"queue": ids}
	publish(ctx, s.events, s.logger, ev)
	return sched, nil
}

// AddOperator appends personID and creates their break; false when already queued
func (s *QueueService) AddOperator(ctx context.Context, scheduleID, personID string) (bool, error) {
	if _, err := s.repos.Persons.GetPerson(ctx, personID); err != nil {
		return false, err
	}
	sched, changed, err := s.updateQueue(ctx, scheduleID, func(cur *domain.Schedule) ([]string, int, bool) {
		if cur.Contains(personID) {
			return nil, 0, false
		}
		return append(append([]string{}, cur.Queue...), personID), cur.Cursor, true
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.rebookQueue(ctx, sched)
	}
	if _, err := s.ensureBreak(ctx, sched, nil, personID); err != nil {
		return changed, err
	}
	return changed, nil
}

// RemoveOperator drops personID from the queue keeping the order of the rest and the
// cursor. Their break row stays as history but is no longer reminded, and the
// operators behind them move up a slot. False when not queued.
func (s *QueueService) RemoveOperator(ctx context.Context, scheduleID, personID string) (bool, error) {
	sched, changed, err := s.updateQueue(ctx, scheduleID, func(cur *domain.Schedule) ([]string, int, bool) {
		pos := cur.Position(personID)
		if pos < 0 {
			return nil, 0, false
		}
		next := make([]string, 0, len(cur.Queue)-1)
		next = append(next, cur.Queue[:pos]...)
		next = append(next, cur.Queue[pos+1:]...)
		cursor := cur.Cursor
		if cursor > len(next) {
			cursor = len(next)
		}
		return next, cursor, true
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.rebookQueue(ctx, sched)
	}
	return changed, nil
}

// updateQueue read-modify-CAS loop; mutate returns the new queue and cursor or false for no-op
func (s *QueueService) updateQueue(ctx context.Context, scheduleID string, mutate func(*domain.Schedule) ([]string, int, bool)) (*domain.Schedule, bool, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := s.repos.Schedules.GetSchedule(ctx, scheduleID)
		if err != nil {
			return nil, false, err
		}
		queue, cursor, ok := mutate(cur)
		if !ok {
			return cur, false, nil
		}
		err = s.repos.Schedules.CompareAndSwapQueue(ctx, scheduleID, cur.Queue, queue, cursor)
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Debug("Queue update raced, retrying", zap.String("schedule_id", scheduleID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("update queue: %w", err)
		}
		cur.Queue = queue
		cur.Cursor = cursor
		return cur, true, nil
	}
	return nil, false, fmt.Errorf("%w: queue of schedule %s is being modified concurrently", ErrConflict, scheduleID)
}

// ensureBreak the person's break at the slot of their current position; an existing
// scheduled, un-reminded break whose slot moved is rescheduled
func (s *QueueService) ensureBreak(ctx context.Context, sched *domain.Schedule, shift *domain.Shift, personID string) (*domain.Break, error) {
	if shift == nil {
		var err error
		if shift, err = s.repos.Shifts.GetShift(ctx, sched.ShiftID); err != nil {
			return nil, fmt.Errorf("get shift: %w", err)
		}
	}
	pos := sched.Position(personID)
	if pos < 0 {
		return s.repos.Breaks.GetBreakForPerson(ctx, personID, sched.ScheduleID)
	}

	start, end, clamped := domain.SlotFor(shift, s.scheduleDay(sched), pos, sched.Size())
	notes := ""
	if clamped {
		notes = domain.SlotClampedNote
	}
	b, err := s.repos.Breaks.CreateBreak(ctx, &domain.Break{
		PersonID:       personID,
		ScheduleID:     sched.ScheduleID,
		ScheduledStart: start,
		ScheduledEnd:   end,
		Status:         domain.BreakScheduled,
		Notes:          domain.NullString(notes),
	})
	if err != nil {
		return nil, fmt.Errorf("create break: %w", err)
	}
	if b.ScheduledStart.Equal(start) && b.ScheduledEnd.Equal(end) {
		return b, nil
	}
	moved, err := s.repos.Breaks.RescheduleBreak(ctx, b.BreakID, start, end, notes)
	if err != nil {
		return nil, fmt.Errorf("reschedule break: %w", err)
	}
	if moved {
		b.ScheduledStart, b.ScheduledEnd = start, end
	}
	return b, nil
}

// scheduleDay the schedule's calendar date at midnight in the clock's location
func (s *QueueService) scheduleDay(sched *domain.Schedule) time.Time {
	y, m, d := sched.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.clock.Now().Location())
}

// rebookQueue moves every queued break that has not started to the slot of its
// current position after an explicit queue change. A reminded break goes back to
// scheduled so its new slot gets a reminder of its own. Failures are logged.
func (s *QueueService) rebookQueue(ctx context.Context, sched *domain.Schedule) {
	shift, err := s.repos.Shifts.GetShift(ctx, sched.ShiftID)
	if err != nil {
		s.logger.Warn("Cannot rebook breaks without shift", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
		return
	}
	breaks, err := s.repos.Breaks.ListBreaksBySchedule(ctx, sched.ScheduleID)
	if err != nil {
		s.logger.Warn("Cannot list breaks to rebook", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
		return
	}
	day := s.scheduleDay(sched)
	rebooked := 0
	for _, b := range breaks {
		pos := sched.Position(b.PersonID)
		if pos < 0 || !b.CanStart() {
			continue
		}
		start, end, clamped := domain.SlotFor(shift, day, pos, sched.Size())
		if b.ScheduledStart.Equal(start) && b.ScheduledEnd.Equal(end) {
			continue
		}
		notes := ""
		if clamped {
			notes = domain.SlotClampedNote
		}
		moved, err := s.repos.Breaks.RebookBreak(ctx, b.BreakID, start, end, notes)
		if err != nil {
			s.logger.Warn("Failed to rebook break", zap.String("break_id", b.BreakID), zap.Error(err))
			continue
		}
		if moved {
			rebooked++
		}
	}
	if rebooked > 0 {
		s.logger.Info("Breaks rebooked after queue change",
			zap.String("schedule_id", sched.ScheduleID),
			zap.Int("rebooked", rebooked),
		)
	}
	s.syncGroupBreaks(ctx, sched)
}

// syncGroupBreaks lazy recomputation for the current and next groups; failures are logged
func (s *QueueService) syncGroupBreaks(ctx context.Context, sched *domain.Schedule) {
	shift, err := s.repos.Shifts.GetShift(ctx, sched.ShiftID)
	if err != nil {
		s.logger.Warn("Cannot sync group breaks without shift", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
		return
	}
	members := append(sched.CurrentGroup(), sched.NextGroup()...)
	for _, personID := range members {
		if _, err := s.ensureBreak(ctx, sched, shift, personID); err != nil {
			s.logger.Warn("Failed to sync break",
				zap.String("schedule_id", sched.ScheduleID),
				zap.String("person_id", personID),
				zap.Error(err),
			)
		}
	}
}

// CurrentGroup persons of the current group in queue order
func (s *QueueService) CurrentGroup(ctx context.Context, scheduleID string) ([]*domain.Person, error) {
	sched, err := s.repos.Schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.personsInOrder(ctx, sched.CurrentGroup())
}

// NextGroup persons of the group after the current one
func (s *QueueService) NextGroup(ctx context.Context, scheduleID string) ([]*domain.Person, error) {
	sched, err := s.repos.Schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.personsInOrder(ctx, sched.NextGroup())
}

// personsInOrder resolves ids keeping their order; missing persons are skipped
func (s *QueueService) personsInOrder(ctx context.Context, ids []string) ([]*domain.Person, error) {
	persons, err := s.repos.Persons.ListPersonsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load persons: %w", err)
	}
	byID := make(map[string]*domain.Person, len(persons))
	for _, p := range persons {
		byID[p.PersonID] = p
	}
	out := make([]*domain.Person, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			s.logger.Warn("Queued person not found in roster", zap.String("person_id", id))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Advance moves the cursor to the next group. False, with no change, when the
// current group is the last one.
func (s *QueueService) Advance(ctx context.Context, scheduleID string) (bool, *domain.Schedule, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		sched, err := s.repos.Schedules.GetSchedule(ctx, scheduleID)
		if err != nil {
			return false, nil, err
		}
		if !sched.CanAdvance() {
			return false, sched, nil
		}
		next := sched.Cursor + sched.Size()
		err = s.repos.Schedules.CompareAndSwapCursor(ctx, scheduleID, sched.Cursor, next)
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Debug("Cursor advance raced, retrying", zap.String("schedule_id", scheduleID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return false, nil, fmt.Errorf("advance cursor: %w", err)
		}
		sched.Cursor = next

		s.syncGroupBreaks(ctx, sched)
		s.announceGroup(ctx, sched)
		ev := domain.NewEvent(domain.EventScheduleAdvanced, s.clock.Now())
		ev.ScheduleID = sched.ScheduleID
		ev.Data = map[string]any{"cursor": next, "group_number": sched.CurrentGroupNumber()}
		publish(ctx, s.events, s.logger, ev)
		return true, sched, nil
	}
	return false, nil, fmt.Errorf("%w: cursor of schedule %s is being advanced concurrently", ErrConflict, scheduleID)
}

// announceGroup tells each member of the new current group it is their turn
func (s *QueueService) announceGroup(ctx context.Context, sched *domain.Schedule) {
	persons, err := s.personsInOrder(ctx, sched.CurrentGroup())
	if err != nil {
		s.logger.Warn("Cannot announce group", zap.String("schedule_id", sched.ScheduleID), zap.Error(err))
		return
	}
	for _, p := range persons {
		text := fmt.Sprintf("🍽 %s, your lunch group is up (group %d of %d).", p.FirstName, sched.CurrentGroupNumber(), sched.TotalGroups())
		if err := s.notifier.NotifyPerson(ctx, p, text); err != nil {
			s.logger.Warn("Group announcement failed", zap.String("person_id", p.PersonID), zap.Error(err))
		}
	}
}

// Reset cursor back to the first group
func (s *QueueService) Reset(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		sched, err := s.repos.Schedules.GetSchedule(ctx, scheduleID)
		if err != nil {
			return nil, err
		}
		if sched.Cursor != 0 {
			err = s.repos.Schedules.CompareAndSwapCursor(ctx, scheduleID, sched.Cursor, 0)
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reset cursor: %w", err)
			}
			sched.Cursor = 0
		}
		s.syncGroupBreaks(ctx, sched)
		ev := domain.NewEvent(domain.EventScheduleReset, s.clock.Now())
		ev.ScheduleID = sched.ScheduleID
		publish(ctx, s.events, s.logger, ev)
		return sched, nil
	}
	return nil, fmt.Errorf("%w: cursor of schedule %s is being modified concurrently", ErrConflict, scheduleID)
}
