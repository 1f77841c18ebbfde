package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotFor_GroupsShareSlots(t *testing.T) {
	shift := dayShift()
	date := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	wants := []string{"12:00", "12:00", "12:30", "12:30", "13:00"}
	for i, want := range wants {
		start, end, clamped := SlotFor(shift, date, i, 2)
		assert.Equal(t, at(want), start, "index %d", i)
		assert.Equal(t, start.Add(30*time.Minute), end)
		assert.False(t, clamped)
	}
}

func TestSlotFor_ClampsToWindowEnd(t *testing.T) {
	shift := dayShift()
	date := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	// six groups fit in 12:00-15:00; the seventh would end at 15:30
	start, end, clamped := SlotFor(shift, date, 10, 2)
	assert.False(t, clamped)
	assert.Equal(t, at("14:30"), start)

	start, end, clamped = SlotFor(shift, date, 12, 2)
	assert.True(t, clamped)
	assert.Equal(t, at("14:30"), start)
	assert.Equal(t, at("15:00"), end)
}

func TestSlotFor_WindowShorterThanDuration(t *testing.T) {
	shift := dayShift()
	shift.LunchEndTime = MustClockTime("12:20")
	start, end, clamped := SlotFor(shift, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), 0, 2)
	assert.True(t, clamped)
	assert.Equal(t, at("12:00"), start)
	assert.Equal(t, at("12:20"), end)
}

func TestSlotFor_NightShiftEndsAtMidnight(t *testing.T) {
	shift := nightShift()
	date := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	start, end, clamped := SlotFor(shift, date, 5, 1)
	assert.False(t, clamped)
	assert.Equal(t, at("23:30"), start)
	assert.Equal(t, time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC), end)
}
