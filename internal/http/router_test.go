package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/evaluator"
	"github.com/laraveldev/tg-bot/internal/notifier"
	"github.com/laraveldev/tg-bot/internal/repository"
	"github.com/laraveldev/tg-bot/internal/service"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type silentNotifier struct{}

func (silentNotifier) NotifyPerson(context.Context, *domain.Person, string) error { return nil }
func (silentNotifier) NotifySupervisors(context.Context, string) error            { return nil }

type apiFixture struct {
	srv        *httptest.Server
	handler    *LunchHandler
	repos      *repository.Repositories
	clock      *fixedClock
	supervisor *domain.Person
	shift      *domain.Shift
	ops        []*domain.Person
}

func at(hhmm string) time.Time {
	return domain.MustClockTime(hhmm).On(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC))
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	f := &apiFixture{repos: repository.NewMemory(), clock: &fixedClock{now: at("10:00")}}

	svc := service.NewLunchService(service.Deps{
		Repos:    f.repos,
		Notifier: silentNotifier{},
		Clock:    f.clock,
		Logger:   zap.NewNop(),
	})

	f.shift = &domain.Shift{
		Name:                  "Day",
		StartTime:             domain.MustClockTime("09:00"),
		EndTime:               domain.MustClockTime("18:00"),
		LunchStartTime:        domain.MustClockTime("12:00"),
		LunchEndTime:          domain.MustClockTime("15:00"),
		LunchDurationMinutes:  30,
		MaxConcurrentBreakers: 2,
		IsActive:              true,
	}
	require.NoError(t, f.repos.Shifts.CreateShift(ctx, f.shift))

	f.supervisor = &domain.Person{ExternalChatID: "100", FirstName: "Sam", Role: domain.RoleSupervisor, Status: domain.PersonActive}
	require.NoError(t, f.repos.Persons.CreatePerson(ctx, f.supervisor))
	for i, name := range []string{"Ann", "Ben", "Cid"} {
		p := &domain.Person{
			ExternalChatID:      "op-" + name,
			FirstName:           name,
			Role:                domain.RoleOperator,
			Status:              domain.PersonActive,
			IsAvailableForLunch: true,
			LunchOrder:          sql.NullInt64{Int64: int64(i + 1), Valid: true},
			ShiftID:             domain.NullString(f.shift.ShiftID),
		}
		require.NoError(t, f.repos.Persons.CreatePerson(ctx, p))
		f.ops = append(f.ops, p)
	}

	sweeper := evaluator.NewSweeper(svc.Breaks, silentNotifier{}, zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterHealthRoutes()
	f.handler = NewLunchHandler(svc, sweeper, f.clock, "-100", zap.NewNop())
	router.RegisterLunchRoutes(f.handler, NewAuth(svc.Breaks, zap.NewNop()))

	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (f *apiFixture) do(t *testing.T, method, path, personID string, body any) (int, envelope) {
	t.Helper()
	resp := f.raw(t, method, path, personID, body)
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (f *apiFixture) raw(t *testing.T, method, path, personID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+"/lunch/api/v1"+path, &buf)
	require.NoError(t, err)
	if personID != "" {
		req.Header.Set(PersonHeader, personID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (f *apiFixture) buildSchedule(t *testing.T) scheduleView {
	t.Helper()
	status, env := f.do(t, http.MethodPost, "/shifts/"+f.shift.ShiftID+"/schedule", f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var v scheduleView
	require.NoError(t, json.Unmarshal(env.Result, &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newAPI(t)
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSupervisorGate(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, http.MethodPost, "/shifts/"+f.shift.ShiftID+"/schedule", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, ResultError, env.Code)

	status, _ = f.do(t, http.MethodPost, "/shifts/"+f.shift.ShiftID+"/schedule", "nobody", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodPost, "/shifts/"+f.shift.ShiftID+"/schedule", f.ops[0].PersonID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = f.do(t, http.MethodPost, "/shifts/"+f.shift.ShiftID+"/schedule", f.supervisor.PersonID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, ResultSuccess, env.Code)
}

func TestRotationRoutes(t *testing.T) {
	f := newAPI(t)
	sched := f.buildSchedule(t)
	assert.Equal(t, []string{f.ops[0].PersonID, f.ops[1].PersonID}, sched.CurrentGroup)
	assert.Equal(t, 2, sched.TotalGroups)

	status, env := f.do(t, http.MethodGet, "/schedules/"+sched.ScheduleID+"/next", f.ops[0].PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	var next []personView
	require.NoError(t, json.Unmarshal(env.Result, &next))
	require.Len(t, next, 1)
	assert.Equal(t, "Cid", next[0].FirstName)

	status, env = f.do(t, http.MethodPost, "/schedules/"+sched.ScheduleID+"/advance", f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	var adv struct {
		Advanced bool         `json:"advanced"`
		Schedule scheduleView `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &adv))
	assert.True(t, adv.Advanced)
	assert.Equal(t, 2, adv.Schedule.Cursor)

	_, env = f.do(t, http.MethodPost, "/schedules/"+sched.ScheduleID+"/advance", f.supervisor.PersonID, nil)
	require.NoError(t, json.Unmarshal(env.Result, &adv))
	assert.False(t, adv.Advanced)

	status, env = f.do(t, http.MethodPost, "/schedules/"+sched.ScheduleID+"/reset", f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	var reset scheduleView
	require.NoError(t, json.Unmarshal(env.Result, &reset))
	assert.Equal(t, 0, reset.Cursor)
}

func TestReorderValidation(t *testing.T) {
	f := newAPI(t)
	sched := f.buildSchedule(t)
	path := "/schedules/" + sched.ScheduleID + "/reorder"

	status, _ := f.do(t, http.MethodPost, path, f.supervisor.PersonID, map[string]any{
		"person_ids": []string{f.ops[0].PersonID, f.ops[0].PersonID},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := f.do(t, http.MethodPost, path, f.supervisor.PersonID, map[string]any{
		"person_ids": []string{f.ops[2].PersonID, f.ops[1].PersonID, f.ops[0].PersonID},
	})
	require.Equal(t, http.StatusOK, status)
	var v scheduleView
	require.NoError(t, json.Unmarshal(env.Result, &v))
	assert.Equal(t, f.ops[2].PersonID, v.Queue[0])

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/lunch/api/v1"+path, strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set(PersonHeader, f.supervisor.PersonID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOperatorMembershipRoutes(t *testing.T) {
	f := newAPI(t)
	sched := f.buildSchedule(t)
	base := "/schedules/" + sched.ScheduleID + "/operators"

	status, env := f.do(t, http.MethodDelete, base+"/"+f.ops[1].PersonID, f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"removed":true}`, string(env.Result))

	status, env = f.do(t, http.MethodPost, base, f.supervisor.PersonID, map[string]string{"person_id": f.ops[1].PersonID})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"added":true}`, string(env.Result))

	status, _ = f.do(t, http.MethodPost, base, f.supervisor.PersonID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMyBreakLifecycle(t *testing.T) {
	f := newAPI(t)
	f.buildSchedule(t)
	me := f.ops[0].PersonID

	status, env := f.do(t, http.MethodGet, "/me/break", me, nil)
	require.Equal(t, http.StatusOK, status)
	var b breakView
	require.NoError(t, json.Unmarshal(env.Result, &b))
	assert.Equal(t, "scheduled", b.Status)
	assert.True(t, b.ScheduledStart.Equal(at("12:00")))
	assert.Equal(t, 30, b.SlotMinutes)

	status, _ = f.do(t, http.MethodPost, "/me/break/end", me, nil)
	assert.Equal(t, http.StatusConflict, status)

	f.clock.set(at("12:02"))
	status, env = f.do(t, http.MethodPost, "/me/break/start", me, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Result, &b))
	assert.Equal(t, "started", b.Status)
	require.NotNil(t, b.ActualStart)

	status, _ = f.do(t, http.MethodPost, "/me/break/start", me, nil)
	assert.Equal(t, http.StatusConflict, status)

	f.clock.set(at("12:40"))
	status, env = f.do(t, http.MethodPost, "/sweep", f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	var sweep evaluator.SweepResult
	require.NoError(t, json.Unmarshal(env.Result, &sweep))
	assert.Equal(t, 1, sweep.SupervisorNotified)

	status, env = f.do(t, http.MethodPost, "/me/break/end", me, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Result, &b))
	assert.Equal(t, "completed", b.Status)
	require.NotNil(t, b.DurationMinutes)
	assert.Equal(t, 38, *b.DurationMinutes)
}

func TestMarkMissedRoute(t *testing.T) {
	f := newAPI(t)
	sched := f.buildSchedule(t)
	b, err := f.repos.Breaks.GetBreakForPerson(context.Background(), f.ops[1].PersonID, sched.ScheduleID)
	require.NoError(t, err)

	status, _ := f.do(t, http.MethodPost, "/breaks/"+b.BreakID+"/missed", f.ops[0].PersonID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := f.do(t, http.MethodPost, "/breaks/"+b.BreakID+"/missed", f.supervisor.PersonID, map[string]string{"notes": "away"})
	require.Equal(t, http.StatusOK, status)
	var v breakView
	require.NoError(t, json.Unmarshal(env.Result, &v))
	assert.Equal(t, "missed", v.Status)
	assert.Equal(t, "away", v.Notes)

	status, _ = f.do(t, http.MethodPost, "/breaks/"+b.BreakID+"/missed", f.supervisor.PersonID, nil)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = f.do(t, http.MethodPost, "/breaks/ghost/missed", f.supervisor.PersonID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIdentityResolveRoute(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, http.MethodPost, "/identity/resolve", "", map[string]any{
		"chat_id": "555",
		"user_id": "555",
		"profile": map[string]string{"first_name": "Nia"},
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	var p personView
	require.NoError(t, json.Unmarshal(env.Result, &p))
	assert.Equal(t, "Nia", p.FirstName)
	assert.Equal(t, "operator", p.Role)

	status, _ = f.do(t, http.MethodPost, "/identity/resolve", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestContactRouteOnlyForSelf(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, http.MethodPost, "/identity/resolve", "", map[string]any{"chat_id": "555", "user_id": "555"})
	require.Equal(t, http.StatusOK, status, env.Message)
	var nia personView
	require.NoError(t, json.Unmarshal(env.Result, &nia))

	body := map[string]any{"user_id": "555", "phone": "+100200300"}
	status, _ = f.do(t, http.MethodPost, "/identity/contact", "", body)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = f.do(t, http.MethodPost, "/identity/contact", f.ops[0].PersonID, body)
	assert.Equal(t, http.StatusForbidden, status)

	stored, err := f.repos.Persons.GetPerson(context.Background(), nia.PersonID)
	require.NoError(t, err)
	assert.False(t, stored.Phone.Valid)

	status, env = f.do(t, http.MethodPost, "/identity/contact", nia.PersonID, map[string]any{"phone": "+100200300"})
	require.Equal(t, http.StatusOK, status, env.Message)
	var updated personView
	require.NoError(t, json.Unmarshal(env.Result, &updated))
	assert.Equal(t, "+100200300", updated.Phone)
}

type stubFeed struct {
	since string
	count int64
}

func (s *stubFeed) Events(_ context.Context, since string, count int64) ([]notifier.StreamEvent, error) {
	s.since, s.count = since, count
	ev := domain.NewEvent(domain.EventBreakStarted, at("12:00"))
	return []notifier.StreamEvent{{ID: "1-0", Event: ev}}, nil
}

func TestEventsRoute(t *testing.T) {
	f := newAPI(t)

	status, _ := f.do(t, http.MethodGet, "/events", f.supervisor.PersonID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	feed := &stubFeed{}
	f.handler.WithEventFeed(feed)

	status, _ = f.do(t, http.MethodGet, "/events", f.ops[0].PersonID, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = f.do(t, http.MethodGet, "/events?count=zero", f.supervisor.PersonID, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := f.do(t, http.MethodGet, "/events?since=1-0&count=9999", f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1-0", feed.since)
	assert.Equal(t, int64(maxEventCount), feed.count)
	var got []notifier.StreamEvent
	require.NoError(t, json.Unmarshal(env.Result, &got))
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventBreakStarted, got[0].Event.Type)
}

func TestStatsAndExportRoutes(t *testing.T) {
	f := newAPI(t)
	sched := f.buildSchedule(t)

	status, env := f.do(t, http.MethodGet, "/schedules/today", f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	var today []service.ScheduleStats
	require.NoError(t, json.Unmarshal(env.Result, &today))
	require.Len(t, today, 1)
	assert.Equal(t, 3, today[0].TotalOperators)

	status, env = f.do(t, http.MethodGet, "/roster/stats", f.supervisor.PersonID, nil)
	require.Equal(t, http.StatusOK, status)
	var roster service.RosterStats
	require.NoError(t, json.Unmarshal(env.Result, &roster))
	assert.Equal(t, 4, roster.TotalPersons)
	assert.Equal(t, 1, roster.Supervisors)

	resp := f.raw(t, http.MethodGet, "/schedules/"+sched.ScheduleID+"/export", f.supervisor.PersonID, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

	book, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Day")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	status, _ = f.do(t, http.MethodGet, "/schedules/missing/stats", f.supervisor.PersonID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
