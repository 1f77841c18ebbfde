package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/repository"
)

// ScheduleStats progress snapshot of one schedule
type ScheduleStats struct {
	ScheduleID         string `json:"schedule_id"`
	Date               string `json:"date"`
	ShiftName          string `json:"shift_name"`
	TotalOperators     int    `json:"total_operators"`
	CurrentGroupNumber int    `json:"current_group_number"`
	TotalGroups        int    `json:"total_groups"`
	GroupSize          int    `json:"group_size"`
	Cursor             int    `json:"cursor"`
	IsActive           bool   `json:"is_active"`
	OnBreak            int    `json:"on_break"`
	Completed          int    `json:"completed"`
	Missed             int    `json:"missed"`

	// CurrentGroupOnBreak members of the current group whose break is running
	CurrentGroupOnBreak int  `json:"current_group_on_break"`
	ShiftActive         bool `json:"shift_active"`
	LunchOpen           bool `json:"lunch_open"`
	CanSendMore         bool `json:"can_send_more"`
}

// RosterStats roster totals; group figures are nil when the member count is unavailable
type RosterStats struct {
	TotalPersons int  `json:"total_persons"`
	Supervisors  int  `json:"supervisors"`
	Operators    int  `json:"operators"`
	Active       int  `json:"active"`
	OnBreak      int  `json:"on_break"`
	GroupMembers *int `json:"group_members,omitempty"`
	Unregistered *int `json:"unregistered,omitempty"`
}

// StatsService read-only reporting over schedules and the roster
type StatsService struct {
	repos   *repository.Repositories
	members MemberCounter
	clock   Clock
	logger  *zap.Logger
}

// NewStatsService creates the reporting service; members may be nil
func NewStatsService(repos *repository.Repositories, members MemberCounter, clock Clock, logger *zap.Logger) *StatsService {
	return &StatsService{
		repos:   repos,
		members: members,
		clock:   clock,
		logger:  logger,
	}
}

// ScheduleStats counts for scheduleID
func (s *StatsService) ScheduleStats(ctx context.Context, scheduleID string) (*ScheduleStats, error) {
	sched, err := s.repos.Schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	shift, err := s.repos.Shifts.GetShift(ctx, sched.ShiftID)
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	breaks, err := s.repos.Breaks.ListBreaksBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list breaks: %w", err)
	}

	stats := &ScheduleStats{
		ScheduleID:         sched.ScheduleID,
		Date:               sched.Date.Format("2006-01-02"),
		ShiftName:          shift.Name,
		TotalOperators:     len(sched.Queue),
		CurrentGroupNumber: sched.CurrentGroupNumber(),
		TotalGroups:        sched.TotalGroups(),
		GroupSize:          sched.GroupSize,
		Cursor:             sched.Cursor,
		IsActive:           sched.IsActive,
	}
	for _, b := range breaks {
		switch b.Status {
		case domain.BreakStarted:
			stats.OnBreak++
			if sched.IsInCurrentGroup(b.PersonID) {
				stats.CurrentGroupOnBreak++
			}
		case domain.BreakCompleted:
			stats.Completed++
		case domain.BreakMissed:
			stats.Missed++
		}
	}
	now := s.clock.Now()
	stats.ShiftActive = shift.IsCurrentlyActive(now)
	stats.LunchOpen = shift.IsLunchTime(now)
	stats.CanSendMore = shift.CanSendMoreToLunch(stats.OnBreak)
	return stats, nil
}

// RosterStats roster totals plus the chat group's size when a counter is wired
func (s *StatsService) RosterStats(ctx context.Context, groupChatID string) (*RosterStats, error) {
	persons, err := s.repos.Persons.ListPersons(ctx, repository.PersonsFilter{})
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	stats := &RosterStats{TotalPersons: len(persons)}
	for _, p := range persons {
		switch p.Role {
		case domain.RoleSupervisor:
			stats.Supervisors++
		case domain.RoleOperator:
			stats.Operators++
		}
		switch p.Status {
		case domain.PersonActive:
			stats.Active++
		case domain.PersonLunchBreak:
			stats.OnBreak++
		}
	}

	if s.members == nil || groupChatID == "" {
		return stats, nil
	}
	count, err := s.members.GetChatMemberCount(ctx, groupChatID)
	if err != nil {
		s.logger.Warn("Group member count unavailable", zap.String("chat_id", groupChatID), zap.Error(err))
		return stats, nil
	}
	unregistered := count - stats.TotalPersons
	if unregistered < 0 {
		unregistered = 0
	}
	stats.GroupMembers = &count
	stats.Unregistered = &unregistered
	return stats, nil
}

// scheduleExportHeader columns of the schedule workbook
var scheduleExportHeader = []string{
	"Position",
	"Group",
	"Name",
	"Handle",
	"Scheduled Start",
	"Scheduled End",
	"Status",
	"Actual Start",
	"Actual End",
	"Minutes",
	"Notes",
}

// ExportScheduleXLSX workbook with one row per queued person, plus the file name to serve it as
func (s *StatsService) ExportScheduleXLSX(ctx context.Context, scheduleID string) ([]byte, string, error) {
	sched, err := s.repos.Schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, "", err
	}
	shift, err := s.repos.Shifts.GetShift(ctx, sched.ShiftID)
	if err != nil {
		return nil, "", fmt.Errorf("get shift: %w", err)
	}
	persons, err := s.repos.Persons.ListPersonsByIDs(ctx, sched.Queue)
	if err != nil {
		return nil, "", fmt.Errorf("load persons: %w", err)
	}
	breaks, err := s.repos.Breaks.ListBreaksBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, "", fmt.Errorf("list breaks: %w", err)
	}

	byPerson := make(map[string]*domain.Person, len(persons))
	for _, p := range persons {
		byPerson[p.PersonID] = p
	}
	breakOf := make(map[string]*domain.Break, len(breaks))
	for _, b := range breaks {
		breakOf[b.PersonID] = b
	}

	loc := s.clock.Now().Location()
	clock := func(t time.Time) string { return t.In(loc).Format("15:04") }

	groupSize := sched.GroupSize
	if groupSize <= 0 {
		groupSize = shift.GroupSize()
	}
	rows := make([][]any, 0, len(sched.Queue))
	for i, personID := range sched.Queue {
		row := make([]any, len(scheduleExportHeader))
		row[0] = i + 1
		row[1] = i/groupSize + 1
		if p, ok := byPerson[personID]; ok {
			row[2] = p.FullName()
			if p.Username.Valid {
				row[3] = "@" + p.Username.String
			}
		} else {
			row[2] = personID
		}
		if b, ok := breakOf[personID]; ok {
			row[4] = clock(b.ScheduledStart)
			row[5] = clock(b.ScheduledEnd)
			row[6] = string(b.Status)
			if b.ActualStart.Valid {
				row[7] = clock(b.ActualStart.Time)
			}
			if b.ActualEnd.Valid {
				row[8] = clock(b.ActualEnd.Time)
				row[9] = b.DurationMinutes()
			}
			if b.Notes.Valid {
				row[10] = b.Notes.String
			}
		}
		rows = append(rows, row)
	}

	data, err := writeWorkbook(shift.Name, scheduleExportHeader, rows)
	if err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("lunch_%s_%s.xlsx", sched.Date.Format("2006-01-02"), shift.Name)
	return data, name, nil
}

// writeWorkbook single-sheet workbook with a styled header row
func writeWorkbook(sheetName string, header []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Schedule"
	}
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to drop default sheet: %w", err)
		}
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	if err := f.SetColWidth(sheetName, "C", "D", 22); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "K", "K", 36); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for r, row := range rows {
		for c, value := range row {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
