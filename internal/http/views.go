package httpapi

import (
	"time"

	"github.com/laraveldev/tg-bot/internal/domain"
)

type personView struct {
	PersonID            string `json:"person_id"`
	ChatID              string `json:"chat_id"`
	UserID              string `json:"user_id,omitempty"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name,omitempty"`
	Username            string `json:"username,omitempty"`
	Phone               string `json:"phone,omitempty"`
	Role                string `json:"role"`
	Status              string `json:"status"`
	IsAvailableForLunch bool   `json:"is_available_for_lunch"`
	ShiftID             string `json:"shift_id,omitempty"`
}

func toPersonView(p *domain.Person) personView {
	return personView{
		PersonID:            p.PersonID,
		ChatID:              p.ExternalChatID,
		UserID:              p.ExternalUserID.String,
		FirstName:           p.FirstName,
		LastName:            p.LastName.String,
		Username:            p.Username.String,
		Phone:               p.Phone.String,
		Role:                string(p.Role),
		Status:              string(p.Status),
		IsAvailableForLunch: p.IsAvailableForLunch,
		ShiftID:             p.ShiftID.String,
	}
}

func toPersonViews(persons []*domain.Person) []personView {
	out := make([]personView, 0, len(persons))
	for _, p := range persons {
		out = append(out, toPersonView(p))
	}
	return out
}

type breakView struct {
	BreakID            string     `json:"break_id"`
	PersonID           string     `json:"person_id"`
	ScheduleID         string     `json:"schedule_id"`
	ScheduledStart     time.Time  `json:"scheduled_start"`
	ScheduledEnd       time.Time  `json:"scheduled_end"`
	ActualStart        *time.Time `json:"actual_start,omitempty"`
	ActualEnd          *time.Time `json:"actual_end,omitempty"`
	Status             string     `json:"status"`
	ReminderSent       bool       `json:"reminder_sent"`
	SupervisorNotified bool       `json:"supervisor_notified"`
	Notes              string     `json:"notes,omitempty"`
	SlotMinutes        int        `json:"slot_minutes"`
	DurationMinutes    *int       `json:"duration_minutes,omitempty"`
}

func toBreakView(b *domain.Break) breakView {
	v := breakView{
		BreakID:            b.BreakID,
		PersonID:           b.PersonID,
		ScheduleID:         b.ScheduleID,
		ScheduledStart:     b.ScheduledStart,
		ScheduledEnd:       b.ScheduledEnd,
		Status:             string(b.Status),
		ReminderSent:       b.ReminderSent,
		SupervisorNotified: b.SupervisorNotified,
		Notes:              b.Notes.String,
		SlotMinutes:        b.ScheduledDurationMinutes(),
	}
	if b.ActualStart.Valid {
		t := b.ActualStart.Time
		v.ActualStart = &t
	}
	if b.ActualEnd.Valid {
		t := b.ActualEnd.Time
		v.ActualEnd = &t
	}
	return v
}

type scheduleView struct {
	ScheduleID   string   `json:"schedule_id"`
	Date         string   `json:"date"`
	ShiftID      string   `json:"shift_id"`
	Queue        []string `json:"queue"`
	Cursor       int      `json:"cursor"`
	GroupSize    int      `json:"group_size"`
	TotalGroups  int      `json:"total_groups"`
	CurrentGroup []string `json:"current_group"`
	NextGroup    []string `json:"next_group"`
	IsActive     bool     `json:"is_active"`
}

func toScheduleView(s *domain.Schedule) scheduleView {
	queue := make([]string, len(s.Queue))
	copy(queue, s.Queue)
	return scheduleView{
		ScheduleID:   s.ScheduleID,
		Date:         s.Date.Format("2006-01-02"),
		ShiftID:      s.ShiftID,
		Queue:        queue,
		Cursor:       s.Cursor,
		GroupSize:    s.Size(),
		TotalGroups:  s.TotalGroups(),
		CurrentGroup: s.CurrentGroup(),
		NextGroup:    s.NextGroup(),
		IsActive:     s.IsActive,
	}
}
