package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType lunch domain event name
type EventType string

const (
	EventBreakStarted      EventType = "break.started"
	EventBreakCompleted    EventType = "break.completed"
	EventBreakMissed       EventType = "break.missed"
	EventBreakReminded     EventType = "break.reminded"
	EventBreakOverdue      EventType = "break.overdue"
	EventScheduleBuilt     EventType = "schedule.built"
	EventScheduleAdvanced  EventType = "schedule.advanced"
	EventScheduleReset     EventType = "schedule.reset"
	EventScheduleReordered EventType = "schedule.reordered"
	EventPersonCreated     EventType = "person.created"
	EventNotification      EventType = "notification.sent"
)

// Event state change published to Redis Streams / MQTT subscribers
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	PersonID   string         `json:"person_id,omitempty"`
	ScheduleID string         `json:"schedule_id,omitempty"`
	BreakID    string         `json:"break_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewEvent event with a fresh id
func NewEvent(t EventType, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: at}
}

// BreakEvent event carrying the break's ids
func BreakEvent(t EventType, at time.Time, b *Break) Event {
	ev := NewEvent(t, at)
	ev.PersonID = b.PersonID
	ev.ScheduleID = b.ScheduleID
	ev.BreakID = b.BreakID
	return ev
}
