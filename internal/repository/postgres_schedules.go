package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// PostgresSchedulesRepository schedules table (breaks are written alongside on build)
type PostgresSchedulesRepository struct {
	db *sql.DB
}

// NewPostgresSchedulesRepository creates the schedules repository
func NewPostgresSchedulesRepository(db *sql.DB) *PostgresSchedulesRepository {
	return &PostgresSchedulesRepository{db: db}
}

var _ SchedulesRepository = (*PostgresSchedulesRepository)(nil)

const scheduleColumns = `
	schedule_id::text, schedule_date, shift_id::text, queue, queue_cursor, group_size,
	is_active, created_at, updated_at`

const dateLayout = "2006-01-02"

// textArray nil-safe TEXT[] parameter; a nil pq.StringArray is sent as NULL
func textArray(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ss)
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	if err := row.Scan(
		&s.ScheduleID,
		&s.Date,
		&s.ShiftID,
		&s.Queue,
		&s.Cursor,
		&s.GroupSize,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if s.Queue == nil {
		s.Queue = pq.StringArray{}
	}
	return &s, nil
}

// GetSchedule by schedule_id
func (r *PostgresSchedulesRepository) GetSchedule(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	if _, err := uuid.Parse(scheduleID); err != nil {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, `schedule_id = $1`, scheduleID)
}

// GetScheduleByDate unique (schedule_date, shift_id) lookup
func (r *PostgresSchedulesRepository) GetScheduleByDate(ctx context.Context, shiftID string, date time.Time) (*domain.Schedule, error) {
	return r.getOne(ctx, `shift_id = $1 AND schedule_date = $2::date`, shiftID, date.Format(dateLayout))
}

func (r *PostgresSchedulesRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return s, nil
}

// ListSchedulesByDate all shifts' schedules for one date
func (r *PostgresSchedulesRepository) ListSchedulesByDate(ctx context.Context, date time.Time) ([]*domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE schedule_date = $1::date ORDER BY shift_id`,
		date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	out := []*domain.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateScheduleWithBreaks one transaction; a concurrent or earlier build wins
// and its row is returned with created=false.
func (r *PostgresSchedulesRepository) CreateScheduleWithBreaks(ctx context.Context, s *domain.Schedule, breaks []*domain.Break) (*domain.Schedule, bool, error) {
	if s.ScheduleID == "" {
		s.ScheduleID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO schedules (schedule_id, schedule_date, shift_id, queue, queue_cursor, group_size, is_active)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (schedule_date, shift_id) DO NOTHING
		RETURNING created_at, updated_at
	`,
		s.ScheduleID,
		s.Date.Format(dateLayout),
		s.ShiftID,
		textArray(s.Queue),
		s.Cursor,
		s.Size(),
		s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		existing, getErr := r.GetScheduleByDate(ctx, s.ShiftID, s.Date)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert schedule: %w", err)
	}

	for _, b := range breaks {
		if b.BreakID == "" {
			b.BreakID = uuid.NewString()
		}
		if b.Status == "" {
			b.Status = domain.BreakScheduled
		}
		b.ScheduleID = s.ScheduleID
		if _, err := tx.ExecContext(ctx, insertBreakSQL+` ON CONFLICT (person_id, schedule_id) DO NOTHING`,
			b.BreakID, b.PersonID, b.ScheduleID, b.ScheduledStart, b.ScheduledEnd, string(b.Status), b.Notes,
		); err != nil {
			return nil, false, fmt.Errorf("failed to insert break for person %s: %w", b.PersonID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit schedule: %w", err)
	}
	return s, true, nil
}

// CompareAndSwapCursor guarded cursor update
func (r *PostgresSchedulesRepository) CompareAndSwapCursor(ctx context.Context, scheduleID string, expected, next int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET queue_cursor = $3, updated_at = NOW()
		WHERE schedule_id = $1 AND queue_cursor = $2 AND $3 >= 0 AND $3 <= cardinality(queue)
	`, scheduleID, expected, next)
	if err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}
	return r.guardResult(ctx, res, scheduleID)
}

// CompareAndSwapQueue guarded queue replacement
func (r *PostgresSchedulesRepository) CompareAndSwapQueue(ctx context.Context, scheduleID string, expected, queue []string, cursor int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET queue = $3, queue_cursor = $4, updated_at = NOW()
		WHERE schedule_id = $1 AND queue = $2
	`, scheduleID, textArray(expected), textArray(queue), cursor)
	if err != nil {
		return fmt.Errorf("failed to update queue: %w", err)
	}
	return r.guardResult(ctx, res, scheduleID)
}

// guardResult 0 affected rows means conflict when the schedule exists, else not found
func (r *PostgresSchedulesRepository) guardResult(ctx context.Context, res sql.Result, scheduleID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schedules WHERE schedule_id = $1)`, scheduleID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check schedule: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
