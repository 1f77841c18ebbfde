package domain

import "time"

// SlotClampedNote recorded on a break whose slot was pulled back inside the lunch window
const SlotClampedNote = "slot clamped to lunch window"

// SlotFor computes the break slot of the person at queue index:
// lunch start + floor(index/groupSize) * duration. A slot that would end past
// the lunch window end is clamped to end at the window end (never starting
// before the window start) and clamped is true.
func SlotFor(shift *Shift, date time.Time, index, groupSize int) (start, end time.Time, clamped bool) {
	if groupSize <= 0 {
		groupSize = 1
	}
	if index < 0 {
		index = 0
	}
	windowStart, windowEnd := shift.LunchWindow(date)
	duration := shift.LunchDuration()

	start = windowStart.Add(time.Duration(index/groupSize) * duration)
	end = start.Add(duration)
	if end.After(windowEnd) {
		clamped = true
		end = windowEnd
		start = windowEnd.Add(-duration)
		if start.Before(windowStart) {
			start = windowStart
		}
	}
	return start, end, clamped
}
