package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// PostgresShiftsRepository shifts table
type PostgresShiftsRepository struct {
	db *sql.DB
}

// NewPostgresShiftsRepository creates the shifts repository
func NewPostgresShiftsRepository(db *sql.DB) *PostgresShiftsRepository {
	return &PostgresShiftsRepository{db: db}
}

var _ ShiftsRepository = (*PostgresShiftsRepository)(nil)

const shiftColumns = `
	shift_id::text, name, start_time, end_time, lunch_start_time, lunch_end_time,
	lunch_duration_minutes, max_concurrent_breakers, is_active, created_at, updated_at`

func scanShift(row rowScanner) (*domain.Shift, error) {
	var s domain.Shift
	var start, end, lunchStart, lunchEnd string
	if err := row.Scan(
		&s.ShiftID,
		&s.Name,
		&start,
		&end,
		&lunchStart,
		&lunchEnd,
		&s.LunchDurationMinutes,
		&s.MaxConcurrentBreakers,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	for _, f := range []struct {
		dst *domain.ClockTime
		src string
	}{
		{&s.StartTime, start},
		{&s.EndTime, end},
		{&s.LunchStartTime, lunchStart},
		{&s.LunchEndTime, lunchEnd},
	} {
		if *f.dst, err = domain.ParseClockTime(f.src); err != nil {
			return nil, fmt.Errorf("shift %s: %w", s.ShiftID, err)
		}
	}
	return &s, nil
}

// GetShift by shift_id
func (r *PostgresShiftsRepository) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	if _, err := uuid.Parse(shiftID); err != nil {
		return nil, ErrNotFound
	}
	s, err := scanShift(r.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE shift_id = $1`, shiftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return s, nil
}

// ListShifts ordered by start time
func (r *PostgresShiftsRepository) ListShifts(ctx context.Context, activeOnly bool) ([]*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY start_time ASC, shift_id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	defer rows.Close()

	out := []*domain.Shift{}
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateShift inserts s, applying defaults for duration and capacity
func (r *PostgresShiftsRepository) CreateShift(ctx context.Context, s *domain.Shift) error {
	if s.ShiftID == "" {
		s.ShiftID = uuid.NewString()
	}
	if s.LunchDurationMinutes <= 0 {
		s.LunchDurationMinutes = domain.DefaultLunchDurationMinutes
	}
	if s.MaxConcurrentBreakers <= 0 {
		s.MaxConcurrentBreakers = domain.DefaultMaxConcurrentBreakers
	}
	query := `
		INSERT INTO shifts (
			shift_id, name, start_time, end_time, lunch_start_time, lunch_end_time,
			lunch_duration_minutes, max_concurrent_breakers, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ShiftID,
		s.Name,
		s.StartTime.String(),
		s.EndTime.String(),
		s.LunchStartTime.String(),
		s.LunchEndTime.String(),
		s.LunchDurationMinutes,
		s.MaxConcurrentBreakers,
		s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create shift: %w", err)
	}
	return nil
}
