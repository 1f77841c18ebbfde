package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laraveldev/tg-bot/internal/domain"
)

func TestQueue_FiveOperatorRotation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.dayShift(t)
	ops := e.operators(t, shift, 5)

	sched, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)
	assert.Equal(t, ops, []string(sched.Queue))
	assert.Equal(t, 0, sched.Cursor)
	assert.Equal(t, 2, sched.GroupSize)
	assert.Equal(t, 3, sched.TotalGroups())

	wantStarts := []string{"12:00", "12:00", "12:30", "12:30", "13:00"}
	for i, id := range ops {
		b := e.breakOf(t, id, sched.ScheduleID)
		assert.Equal(t, at(wantStarts[i]), b.ScheduledStart, "operator %d", i)
		assert.Equal(t, at(wantStarts[i]).Add(30*time.Minute), b.ScheduledEnd, "operator %d", i)
		assert.Equal(t, domain.BreakScheduled, b.Status)
	}

	current, err := e.Queue.CurrentGroup(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, ops[0:2], personIDs(current))
	next, err := e.Queue.NextGroup(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, ops[2:4], personIDs(next))

	ok, sched, err := e.Queue.Advance(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, sched.Cursor)
	assert.Equal(t, 1, e.notifier.sentTo(ops[2]))
	assert.Equal(t, 1, e.notifier.sentTo(ops[3]))

	ok, sched, err = e.Queue.Advance(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, sched.Cursor)
	current, err = e.Queue.CurrentGroup(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, ops[4:], personIDs(current))
	next, err = e.Queue.NextGroup(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Empty(t, next)

	ok, sched, err = e.Queue.Advance(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, sched.Cursor)
	assert.Equal(t, 2, e.events.count(domain.EventScheduleAdvanced))

	sched, err = e.Queue.Reset(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, 0, sched.Cursor)
	assert.Equal(t, 1, e.events.count(domain.EventScheduleReset))
}

func personIDs(persons []*domain.Person) []string {
	out := make([]string, 0, len(persons))
	for _, p := range persons {
		out = append(out, p.PersonID)
	}
	return out
}

func TestQueue_BuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.dayShift(t)
	e.operators(t, shift, 3)

	first, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)
	second, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)

	assert.Equal(t, first.ScheduleID, second.ScheduleID)
	breaks, err := e.repos.Breaks.ListBreaksBySchedule(ctx, first.ScheduleID)
	require.NoError(t, err)
	assert.Len(t, breaks, 3)
	assert.Equal(t, 1, e.events.count(domain.EventScheduleBuilt))
}

func TestQueue_ConcurrentBuildsCreateOneSchedule(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.dayShift(t)
	e.operators(t, shift, 4)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sched, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
			if assert.NoError(t, err) {
				ids[i] = sched.ScheduleID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	breaks, err := e.repos.Breaks.ListBreaksBySchedule(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, breaks, 4)
}

func TestQueue_ConcurrentAdvanceNeverSkipsGroups(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.dayShift(t)
	e.operators(t, shift, 5)
	sched, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		advanced int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := e.Queue.Advance(ctx, sched.ScheduleID)
			if assert.NoError(t, err) && ok {
				atomic.AddInt32(&advanced, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), advanced)
	got, err := e.repos.Schedules.GetSchedule(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Cursor)
}

func TestQueue_OverflowIsClampedAndReported(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.shift(t, "Short", "09:00", "18:00", "12:00", "13:00", 1)
	ops := e.operators(t, shift, 3)

	sched, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)

	last := e.breakOf(t, ops[2], sched.ScheduleID)
	assert.Equal(t, at("12:30"), last.ScheduledStart)
	assert.Equal(t, at("13:00"), last.ScheduledEnd)
	assert.Equal(t, domain.SlotClampedNote, last.Notes.String)

	second := e.breakOf(t, ops[1], sched.ScheduleID)
	assert.False(t, second.Notes.Valid)
	assert.Equal(t, 1, e.notifier.supervisorCount())

	_, err = e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)
	assert.Equal(t, 1, e.notifier.supervisorCount())
}

func TestQueue_ExplicitQueueSkipsUnknownAndDuplicates(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.dayShift(t)
	ops := e.operators(t, shift, 3)

	explicit := []string{ops[2], "missing", ops[0], ops[2]}
	sched, err := e.Queue.BuildOrGet(ctx, shift, at("10:00"), explicit)
	require.NoError(t, err)
	assert.Equal(t, []string{ops[2], ops[0]}, []string(sched.Queue))
}

func TestQueue_InactiveShiftRejected(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := &domain.Shift{
		Name:           "Off",
		StartTime:      domain.MustClockTime("09:00"),
		EndTime:        domain.MustClockTime("18:00"),
		LunchStartTime: domain.MustClockTime("12:00"),
		LunchEndTime:   domain.MustClockTime("13:00"),
	}
	require.NoError(t, e.repos.Shifts.CreateShift(ctx, shift))

	_, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.Queue.BuildOrGetToday(ctx, "no-such-shift")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueue_OvernightShiftUsesPreviousDateAfterMidnight(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("01:00"))
	shift := e.shift(t, "Night", "18:00", "03:00", "21:00", "24:00", 1)
	e.operators(t, shift, 1)

	sched, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-05", sched.Date.Format("2006-01-02"))
}

func TestQueue_ReorderValidatesAndResetsCursor(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.dayShift(t)
	ops := e.operators(t, shift, 4)
	sched, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)
	_, _, err = e.Queue.Advance(ctx, sched.ScheduleID)
	require.NoError(t, err)

	_, err = e.Queue.Reorder(ctx, sched.ScheduleID, []string{ops[0], ops[0]})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = e.Queue.Reorder(ctx, sched.ScheduleID, []string{ops[0], "ghost"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = e.Queue.Reorder(ctx, sched.ScheduleID, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	reordered := []string{ops[3], ops[2], ops[1], ops[0]}
	got, err := e.Queue.Reorder(ctx, sched.ScheduleID, reordered)
	require.NoError(t, err)
	assert.Equal(t, reordered, []string(got.Queue))
	assert.Equal(t, 0, got.Cursor)

	assert.Equal(t, at("12:00"), e.breakOf(t, ops[3], sched.ScheduleID).ScheduledStart)
	assert.Equal(t, at("12:00"), e.breakOf(t, ops[2], sched.ScheduleID).ScheduledStart)
	assert.Equal(t, at("12:30"), e.breakOf(t, ops[0], sched.ScheduleID).ScheduledStart)
	assert.Equal(t, 1, e.events.count(domain.EventScheduleReordered))
}

func TestQueue_AddAndRemoveOperator(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	shift := e.dayShift(t)
	ops := e.operators(t, shift, 4)
	sched, err := e.Queue.BuildOrGetToday(ctx, shift.ShiftID)
	require.NoError(t, err)

	late := &domain.Person{ExternalChatID: "late", FirstName: "Late", Role: domain.RoleOperator, Status: domain.PersonActive}
	require.NoError(t, e.repos.Persons.CreatePerson(ctx, late))

	added, err := e.Queue.AddOperator(ctx, sched.ScheduleID, late.PersonID)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, at("13:00"), e.breakOf(t, late.PersonID, sched.ScheduleID).ScheduledStart)

	added, err = e.Queue.AddOperator(ctx, sched.ScheduleID, late.PersonID)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = e.Queue.AddOperator(ctx, sched.ScheduleID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = e.Queue.Advance(ctx, sched.ScheduleID)
	require.NoError(t, err)

	removed, err := e.Queue.RemoveOperator(ctx, sched.ScheduleID, ops[0])
	require.NoError(t, err)
	assert.True(t, removed)
	got, err := e.repos.Schedules.GetSchedule(ctx, sched.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, []string{ops[1], ops[2], ops[3], late.PersonID}, []string(got.Queue))
	assert.Equal(t, 2, got.Cursor)

	removed, err = e.Queue.RemoveOperator(ctx, sched.ScheduleID, ops[0])
	require.NoError(t, err)
	assert.False(t, removed)

	// history stays; everyone behind moves up a slot
	assert.Equal(t, domain.BreakScheduled, e.breakOf(t, ops[0], sched.ScheduleID).Status)
	assert.Equal(t, at("12:00"), e.breakOf(t, ops[2], sched.ScheduleID).ScheduledStart)
	assert.Equal(t, at("12:30"), e.breakOf(t, late.PersonID, sched.ScheduleID).ScheduledStart)
}

func TestQueue_BuildTodayForActiveShifts(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, at("10:00"))
	day := e.dayShift(t)
	night := e.shift(t, "Night", "18:00", "03:00", "21:00", "24:00", 1)
	e.operators(t, day, 2)
	e.operators(t, night, 2)

	built, err := e.Queue.BuildTodayForActiveShifts(ctx)
	require.NoError(t, err)
	assert.Len(t, built, 2)

	today, err := e.Queue.TodaySchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, today, 2)

	// past midnight only the night shift's occurrence is still running
	e.clock.Set(at("01:00").Add(24 * time.Hour))
	today, err = e.Queue.TodaySchedules(ctx)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, night.ShiftID, today[0].ShiftID)
}
