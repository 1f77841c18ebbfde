package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMessage struct {
	PersonID string
	Text     string
}

type recordingNotifier struct {
	mu          sync.Mutex
	personal    []sentMessage
	supervisors []string
	err         error
}

func (n *recordingNotifier) NotifyPerson(_ context.Context, p *domain.Person, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.personal = append(n.personal, sentMessage{PersonID: p.PersonID, Text: text})
	return n.err
}

func (n *recordingNotifier) NotifySupervisors(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.supervisors = append(n.supervisors, text)
	return n.err
}

func (n *recordingNotifier) sentTo(personID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.personal {
		if m.PersonID == personID {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) supervisorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.supervisors)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(t domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// stubAdmins admin status per user id; err makes every check fail
type stubAdmins struct {
	mu      sync.Mutex
	admins  map[string]bool
	members []ChatMember
	err     error
}

func (a *stubAdmins) IsGroupAdmin(_ context.Context, _ string, userID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	return a.admins[userID], nil
}

func (a *stubAdmins) GroupAdministrators(context.Context, string) ([]ChatMember, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.members, nil
}

func (a *stubAdmins) set(userID string, admin bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.admins[userID] = admin
	a.err = err
}

type stubCounter struct {
	count int
	err   error
}

func (c stubCounter) GetChatMemberCount(context.Context, string) (int, error) {
	return c.count, c.err
}

var errUpstream = errors.New("telegram unavailable")

type engine struct {
	*LunchService
	repos    *repository.Repositories
	clock    *testClock
	notifier *recordingNotifier
	events   *recordingPublisher
	admins   *stubAdmins
}

// day is 2024-05-06 (a Monday), UTC
func at(hhmm string) time.Time {
	c := domain.MustClockTime(hhmm)
	return c.On(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC))
}

func newEngine(t *testing.T, now time.Time) *engine {
	t.Helper()
	e := &engine{
		repos:    repository.NewMemory(),
		clock:    &testClock{now: now},
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
		admins:   &stubAdmins{admins: map[string]bool{}},
	}
	e.LunchService = NewLunchService(Deps{
		Repos:             e.repos,
		AdminChecker:      e.admins,
		AdminLister:       e.admins,
		MemberCounter:     stubCounter{count: 10},
		Notifier:          e.notifier,
		Events:            e.events,
		Clock:             e.clock,
		Logger:            zap.NewNop(),
		AdminCheckTimeout: time.Second,
	})
	return e
}

// dayShift 09:00-18:00, lunch 12:00-15:00, 30 min, two at a time
func (e *engine) dayShift(t *testing.T) *domain.Shift {
	t.Helper()
	return e.shift(t, "Day", "09:00", "18:00", "12:00", "15:00", 2)
}

func (e *engine) shift(t *testing.T, name, start, end, lunchStart, lunchEnd string, maxBreakers int) *domain.Shift {
	t.Helper()
	s := &domain.Shift{
		Name:                  name,
		StartTime:             domain.MustClockTime(start),
		EndTime:               domain.MustClockTime(end),
		LunchStartTime:        domain.MustClockTime(lunchStart),
		LunchEndTime:          domain.MustClockTime(lunchEnd),
		LunchDurationMinutes:  30,
		MaxConcurrentBreakers: maxBreakers,
		IsActive:              true,
	}
	require.NoError(t, e.repos.Shifts.CreateShift(context.Background(), s))
	return s
}

// operators registers n available operators on shift in lunch order
func (e *engine) operators(t *testing.T, shift *domain.Shift, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := &domain.Person{
			ExternalChatID:      "chat-" + shift.Name + "-" + string(rune('a'+i)),
			FirstName:           "Op" + string(rune('A'+i)),
			Role:                domain.RoleOperator,
			Status:              domain.PersonActive,
			IsAvailableForLunch: true,
			LunchOrder:          nullInt(int64(i + 1)),
			ShiftID:             domain.NullString(shift.ShiftID),
		}
		require.NoError(t, e.repos.Persons.CreatePerson(context.Background(), p))
		ids = append(ids, p.PersonID)
	}
	return ids
}

func (e *engine) breakOf(t *testing.T, personID, scheduleID string) *domain.Break {
	t.Helper()
	b, err := e.repos.Breaks.GetBreakForPerson(context.Background(), personID, scheduleID)
	require.NoError(t, err)
	return b
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}
