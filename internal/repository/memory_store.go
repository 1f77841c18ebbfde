package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// MemoryStore all four repositories over maps guarded by one mutex.
// Used when DB is disabled; enforces the same uniqueness and guard semantics
// as the Postgres schema.
type MemoryStore struct {
	mu        sync.RWMutex
	persons   map[string]domain.Person   // personID -> Person
	shifts    map[string]domain.Shift    // shiftID -> Shift
	schedules map[string]domain.Schedule // scheduleID -> Schedule
	breaks    map[string]domain.Break    // breakID -> Break
	seq       int64
	now       func() time.Time
}

// NewMemoryStore empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons:   map[string]domain.Person{},
		shifts:    map[string]domain.Shift{},
		schedules: map[string]domain.Schedule{},
		breaks:    map[string]domain.Break{},
		now:       time.Now,
	}
}

var (
	_ PersonsRepository   = (*MemoryStore)(nil)
	_ ShiftsRepository    = (*MemoryStore)(nil)
	_ SchedulesRepository = (*MemoryStore)(nil)
	_ BreaksRepository    = (*MemoryStore)(nil)
)

// stamp monotonic creation time so created_at ordering is stable within a test
func (m *MemoryStore) stamp() time.Time {
	m.seq++
	return m.now().Add(time.Duration(m.seq) * time.Nanosecond)
}

// ---------- persons ----------

func (m *MemoryStore) GetPerson(_ context.Context, personID string) (*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[personID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetPersonByUserID(_ context.Context, userID string) (*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.persons {
		if p.ExternalUserID.Valid && p.ExternalUserID.String == userID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetPersonByChatID(_ context.Context, chatID string) (*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.persons {
		if p.ExternalChatID == chatID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListPersons(_ context.Context, filter PersonsFilter) ([]*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Person, 0, len(m.persons))
	for _, p := range m.persons {
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.ShiftID != "" && (!p.ShiftID.Valid || p.ShiftID.String != filter.ShiftID) {
			continue
		}
		if filter.AvailableOnly && !p.IsAvailableForLunch {
			continue
		}
		p := p
		out = append(out, &p)
	}
	SortByLunchOrder(out)
	return out, nil
}

// SortByLunchOrder lunch_order asc nulls last, then created_at, then person_id
func SortByLunchOrder(persons []*domain.Person) {
	sort.SliceStable(persons, func(i, j int) bool {
		a, b := persons[i], persons[j]
		if a.LunchOrder.Valid != b.LunchOrder.Valid {
			return a.LunchOrder.Valid
		}
		if a.LunchOrder.Valid && a.LunchOrder.Int64 != b.LunchOrder.Int64 {
			return a.LunchOrder.Int64 < b.LunchOrder.Int64
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.PersonID < b.PersonID
	})
}

func (m *MemoryStore) ListPersonsByIDs(_ context.Context, ids []string) ([]*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Person, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.persons[id]; ok {
			out = append(out, &p)
		}
	}
	return out, nil
}

// identityTaken another person already owns the user id or chat id
func (m *MemoryStore) identityTaken(p *domain.Person) bool {
	for id, other := range m.persons {
		if id == p.PersonID {
			continue
		}
		if other.ExternalChatID == p.ExternalChatID {
			return true
		}
		if p.ExternalUserID.Valid && other.ExternalUserID.Valid && other.ExternalUserID.String == p.ExternalUserID.String {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreatePerson(_ context.Context, p *domain.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.PersonID == "" {
		p.PersonID = uuid.NewString()
	}
	if _, exists := m.persons[p.PersonID]; exists || m.identityTaken(p) {
		return ErrConflict
	}
	now := m.stamp()
	p.CreatedAt, p.UpdatedAt = now, now
	m.persons[p.PersonID] = *p
	return nil
}

func (m *MemoryStore) UpdatePerson(_ context.Context, p *domain.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.persons[p.PersonID]
	if !ok {
		return ErrNotFound
	}
	if m.identityTaken(p) {
		return ErrConflict
	}
	next := *p
	next.Status = cur.Status
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = m.stamp()
	m.persons[p.PersonID] = next
	p.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *MemoryStore) UpdatePersonStatus(_ context.Context, personID string, status domain.PersonStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[personID]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = m.stamp()
	m.persons[personID] = p
	return nil
}

// ---------- shifts ----------

func (m *MemoryStore) GetShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shifts[shiftID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) ListShifts(_ context.Context, activeOnly bool) ([]*domain.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Shift, 0, len(m.shifts))
	for _, s := range m.shifts {
		if activeOnly && !s.IsActive {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ShiftID < out[j].ShiftID
	})
	return out, nil
}

func (m *MemoryStore) CreateShift(_ context.Context, s *domain.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ShiftID == "" {
		s.ShiftID = uuid.NewString()
	}
	if _, exists := m.shifts[s.ShiftID]; exists {
		return ErrConflict
	}
	now := m.stamp()
	s.CreatedAt, s.UpdatedAt = now, now
	m.shifts[s.ShiftID] = *s
	return nil
}

// ---------- schedules ----------

func copySchedule(s domain.Schedule) *domain.Schedule {
	s.Queue = append([]string(nil), s.Queue...)
	return &s
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *MemoryStore) GetSchedule(_ context.Context, scheduleID string) (*domain.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySchedule(s), nil
}

func (m *MemoryStore) findSchedule(shiftID string, date time.Time) (domain.Schedule, bool) {
	for _, s := range m.schedules {
		if s.ShiftID == shiftID && sameDate(s.Date, date) {
			return s, true
		}
	}
	return domain.Schedule{}, false
}

func (m *MemoryStore) GetScheduleByDate(_ context.Context, shiftID string, date time.Time) (*domain.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.findSchedule(shiftID, date)
	if !ok {
		return nil, ErrNotFound
	}
	return copySchedule(s), nil
}

func (m *MemoryStore) ListSchedulesByDate(_ context.Context, date time.Time) ([]*domain.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Schedule{}
	for _, s := range m.schedules {
		if sameDate(s.Date, date) {
			out = append(out, copySchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShiftID < out[j].ShiftID })
	return out, nil
}

func (m *MemoryStore) CreateScheduleWithBreaks(_ context.Context, s *domain.Schedule, breaks []*domain.Break) (*domain.Schedule, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.findSchedule(s.ShiftID, s.Date); ok {
		return copySchedule(existing), false, nil
	}
	if s.ScheduleID == "" {
		s.ScheduleID = uuid.NewString()
	}
	now := m.stamp()
	s.CreatedAt, s.UpdatedAt = now, now
	m.schedules[s.ScheduleID] = *copySchedule(*s)

	for _, b := range breaks {
		b.ScheduleID = s.ScheduleID
		if _, exists := m.findBreak(b.PersonID, b.ScheduleID); exists {
			continue
		}
		m.insertBreak(b)
	}
	return copySchedule(*s), true, nil
}

func (m *MemoryStore) CompareAndSwapCursor(_ context.Context, scheduleID string, expected, next int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return ErrNotFound
	}
	if s.Cursor != expected || next < 0 || next > len(s.Queue) {
		return ErrConflict
	}
	s.Cursor = next
	s.UpdatedAt = m.stamp()
	m.schedules[scheduleID] = s
	return nil
}

func (m *MemoryStore) CompareAndSwapQueue(_ context.Context, scheduleID string, expected, queue []string, cursor int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return ErrNotFound
	}
	if strings.Join(s.Queue, "\x00") != strings.Join(expected, "\x00") || len(s.Queue) != len(expected) {
		return ErrConflict
	}
	if cursor < 0 || cursor > len(queue) {
		return ErrConflict
	}
	s.Queue = append([]string(nil), queue...)
	s.Cursor = cursor
	s.UpdatedAt = m.stamp()
	m.schedules[scheduleID] = s
	return nil
}

// ---------- breaks ----------

func (m *MemoryStore) findBreak(personID, scheduleID string) (domain.Break, bool) {
	for _, b := range m.breaks {
		if b.PersonID == personID && b.ScheduleID == scheduleID {
			return b, true
		}
	}
	return domain.Break{}, false
}

func (m *MemoryStore) insertBreak(b *domain.Break) {
	if b.BreakID == "" {
		b.BreakID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.BreakScheduled
	}
	now := m.stamp()
	b.CreatedAt, b.UpdatedAt = now, now
	m.breaks[b.BreakID] = *b
}

func (m *MemoryStore) GetBreak(_ context.Context, breakID string) (*domain.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breaks[breakID]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) GetBreakForPerson(_ context.Context, personID, scheduleID string) (*domain.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.findBreak(personID, scheduleID)
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) GetStartedBreak(_ context.Context, personID string) (*domain.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breaks {
		if b.PersonID == personID && b.Status == domain.BreakStarted {
			b := b
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListBreaksBySchedule(_ context.Context, scheduleID string) ([]*domain.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Break{}
	for _, b := range m.breaks {
		if b.ScheduleID == scheduleID {
			b := b
			out = append(out, &b)
		}
	}
	sortBreaks(out)
	return out, nil
}

func sortBreaks(bs []*domain.Break) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].ScheduledStart.Equal(bs[j].ScheduledStart) {
			return bs[i].ScheduledStart.Before(bs[j].ScheduledStart)
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}

func (m *MemoryStore) CreateBreak(_ context.Context, b *domain.Break) (*domain.Break, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.findBreak(b.PersonID, b.ScheduleID); ok {
		return &existing, nil
	}
	if _, ok := m.schedules[b.ScheduleID]; !ok {
		return nil, ErrNotFound
	}
	m.insertBreak(b)
	out := m.breaks[b.BreakID]
	return &out, nil
}

func (m *MemoryStore) ListPendingReminders(_ context.Context, now time.Time, lead time.Duration) ([]*domain.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	horizon := now.Add(lead)
	out := []*domain.Break{}
	for _, b := range m.breaks {
		if b.Status != domain.BreakScheduled || b.ReminderSent {
			continue
		}
		if b.ScheduledStart.After(now) && !b.ScheduledStart.After(horizon) {
			b := b
			out = append(out, &b)
		}
	}
	sortBreaks(out)
	return out, nil
}

func (m *MemoryStore) ListOverdue(_ context.Context, now time.Time) ([]*domain.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Break{}
	for _, b := range m.breaks {
		if b.Status == domain.BreakStarted && !b.SupervisorNotified && b.ScheduledEnd.Before(now) {
			b := b
			out = append(out, &b)
		}
	}
	sortBreaks(out)
	return out, nil
}

func statusIn(s domain.BreakStatus, from []domain.BreakStatus) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func appendNote(notes sql.NullString, note string) sql.NullString {
	if note == "" {
		return notes
	}
	if !notes.Valid || notes.String == "" {
		return sql.NullString{String: note, Valid: true}
	}
	return sql.NullString{String: notes.String + "; " + note, Valid: true}
}

func (m *MemoryStore) TransitionBreak(_ context.Context, t BreakTransition) (*domain.Break, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breaks[t.BreakID]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(b.Status, t.From) {
		return nil, ErrConflict
	}
	if t.To == domain.BreakStarted {
		for id, other := range m.breaks {
			if id != b.BreakID && other.PersonID == b.PersonID && other.Status == domain.BreakStarted {
				return nil, ErrConflict
			}
		}
	}

	b.Status = t.To
	switch t.To {
	case domain.BreakStarted:
		b.ActualStart = sql.NullTime{Time: t.At, Valid: true}
	case domain.BreakCompleted:
		b.ActualEnd = sql.NullTime{Time: t.At, Valid: true}
	}
	b.Notes = appendNote(b.Notes, t.Notes)
	b.UpdatedAt = m.stamp()
	m.breaks[b.BreakID] = b
	return &b, nil
}

func (m *MemoryStore) RescheduleBreak(_ context.Context, breakID string, start, end time.Time, notes string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breaks[breakID]
	if !ok {
		return false, ErrNotFound
	}
	if b.Status != domain.BreakScheduled || b.ReminderSent {
		return false, nil
	}
	b.ScheduledStart, b.ScheduledEnd = start, end
	if notes != "" {
		b.Notes = sql.NullString{String: notes, Valid: true}
	}
	b.UpdatedAt = m.stamp()
	m.breaks[breakID] = b
	return true, nil
}

func (m *MemoryStore) RebookBreak(_ context.Context, breakID string, start, end time.Time, notes string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breaks[breakID]
	if !ok {
		return false, ErrNotFound
	}
	if !b.CanStart() {
		return false, nil
	}
	b.ScheduledStart, b.ScheduledEnd = start, end
	b.Status = domain.BreakScheduled
	b.ReminderSent = false
	if notes != "" {
		b.Notes = sql.NullString{String: notes, Valid: true}
	}
	b.UpdatedAt = m.stamp()
	m.breaks[breakID] = b
	return true, nil
}

func (m *MemoryStore) MarkReminderSent(_ context.Context, breakID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breaks[breakID]
	if !ok {
		return false, ErrNotFound
	}
	if b.Status != domain.BreakScheduled || b.ReminderSent {
		return false, nil
	}
	b.ReminderSent = true
	b.Status = domain.BreakReminded
	b.UpdatedAt = m.stamp()
	m.breaks[breakID] = b
	return true, nil
}

func (m *MemoryStore) MarkSupervisorNotified(_ context.Context, breakID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breaks[breakID]
	if !ok {
		return false, ErrNotFound
	}
	if b.Status != domain.BreakStarted || b.SupervisorNotified {
		return false, nil
	}
	b.SupervisorNotified = true
	b.UpdatedAt = m.stamp()
	m.breaks[breakID] = b
	return true, nil
}
