package domain

import (
	"time"

	"github.com/lib/pq"
)

// Schedule one rotation queue per shift per calendar date (schedules table)
type Schedule struct {
	ScheduleID string         `db:"schedule_id"`
	Date       time.Time      `db:"schedule_date"` // midnight, shift's location
	ShiftID    string         `db:"shift_id"`
	Queue      pq.StringArray `db:"queue"`        // person ids in break order
	Cursor     int            `db:"queue_cursor"` // index of the first person of the current group
	GroupSize  int            `db:"group_size"`
	IsActive   bool           `db:"is_active"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// Size normalised group size, at least 1
func (s *Schedule) Size() int {
	if s.GroupSize <= 0 {
		return 1
	}
	return s.GroupSize
}

// CurrentGroup queue[cursor : min(cursor+size, len)]
func (s *Schedule) CurrentGroup() []string {
	return s.groupAt(s.Cursor)
}

// NextGroup the group after the current one, empty when none
func (s *Schedule) NextGroup() []string {
	return s.groupAt(s.Cursor + s.Size())
}

func (s *Schedule) groupAt(start int) []string {
	if start < 0 || start >= len(s.Queue) {
		return []string{}
	}
	end := start + s.Size()
	if end > len(s.Queue) {
		end = len(s.Queue)
	}
	out := make([]string, end-start)
	copy(out, s.Queue[start:end])
	return out
}

// CanAdvance another group exists after the current one
func (s *Schedule) CanAdvance() bool {
	return s.Cursor+s.Size() < len(s.Queue)
}

// TotalGroups ceil(len(queue) / size)
func (s *Schedule) TotalGroups() int {
	size := s.Size()
	return (len(s.Queue) + size - 1) / size
}

// CurrentGroupNumber 1-based group number of the cursor
func (s *Schedule) CurrentGroupNumber() int {
	return s.Cursor/s.Size() + 1
}

// Position index of personID in the queue, -1 if absent
func (s *Schedule) Position(personID string) int {
	for i, id := range s.Queue {
		if id == personID {
			return i
		}
	}
	return -1
}

// Contains personID is queued
func (s *Schedule) Contains(personID string) bool {
	return s.Position(personID) >= 0
}

// IsInCurrentGroup personID is in queue[cursor : cursor+size]
func (s *Schedule) IsInCurrentGroup(personID string) bool {
	pos := s.Position(personID)
	return pos >= s.Cursor && pos < s.Cursor+s.Size()
}
