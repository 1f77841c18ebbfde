package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fiveOperatorSchedule() *Schedule {
	return &Schedule{Queue: []string{"op0", "op1", "op2", "op3", "op4"}, GroupSize: 2}
}

// advance mirrors the rotation engine's cursor arithmetic
func advance(s *Schedule) bool {
	if !s.CanAdvance() {
		return false
	}
	s.Cursor += s.Size()
	return true
}

func TestSchedule_FiveOperatorsGroupsOfTwo(t *testing.T) {
	s := fiveOperatorSchedule()
	assert.Equal(t, []string{"op0", "op1"}, s.CurrentGroup())
	assert.Equal(t, []string{"op2", "op3"}, s.NextGroup())
	assert.Equal(t, 3, s.TotalGroups())
	assert.Equal(t, 1, s.CurrentGroupNumber())

	assert.True(t, advance(s))
	assert.Equal(t, []string{"op2", "op3"}, s.CurrentGroup())
	assert.Equal(t, 2, s.CurrentGroupNumber())

	assert.True(t, advance(s))
	assert.Equal(t, []string{"op4"}, s.CurrentGroup())
	assert.Empty(t, s.NextGroup())

	assert.False(t, advance(s))
	assert.Equal(t, []string{"op4"}, s.CurrentGroup())
	assert.Equal(t, 4, s.Cursor)
	assert.Equal(t, 3, s.CurrentGroupNumber())
}

func TestSchedule_EmptyQueue(t *testing.T) {
	s := &Schedule{GroupSize: 2}
	assert.Empty(t, s.CurrentGroup())
	assert.Empty(t, s.NextGroup())
	assert.False(t, s.CanAdvance())
	assert.Equal(t, 0, s.TotalGroups())
}

func TestSchedule_ZeroGroupSizeNormalised(t *testing.T) {
	s := &Schedule{Queue: []string{"a", "b"}}
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, []string{"a"}, s.CurrentGroup())
	assert.Equal(t, 2, s.TotalGroups())
}

func TestSchedule_CursorStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(9)
		s := &Schedule{GroupSize: 1 + rng.Intn(4)}
		for i := 0; i < n; i++ {
			s.Queue = append(s.Queue, string(rune('a'+i)))
		}
		last := s.Cursor
		for step := 0; step < 20; step++ {
			if rng.Intn(5) == 0 {
				s.Cursor = 0
				last = 0
			} else {
				advance(s)
				assert.GreaterOrEqual(t, s.Cursor, last)
				last = s.Cursor
			}
			assert.GreaterOrEqual(t, s.Cursor, 0)
			assert.LessOrEqual(t, s.Cursor, len(s.Queue))
		}
	}
}

func TestSchedule_Position(t *testing.T) {
	s := fiveOperatorSchedule()
	assert.Equal(t, 3, s.Position("op3"))
	assert.Equal(t, -1, s.Position("nobody"))
	assert.True(t, s.IsInCurrentGroup("op1"))
	assert.False(t, s.IsInCurrentGroup("op2"))
}

func TestSchedule_CurrentGroupIsACopy(t *testing.T) {
	s := fiveOperatorSchedule()
	g := s.CurrentGroup()
	g[0] = "changed"
	assert.Equal(t, "op0", s.Queue[0])
}
