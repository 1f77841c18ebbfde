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

// PostgresBreaksRepository breaks table
type PostgresBreaksRepository struct {
	db *sql.DB
}

// NewPostgresBreaksRepository creates the breaks repository
func NewPostgresBreaksRepository(db *sql.DB) *PostgresBreaksRepository {
	return &PostgresBreaksRepository{db: db}
}

var _ BreaksRepository = (*PostgresBreaksRepository)(nil)

const breakColumns = `
	break_id::text, person_id::text, schedule_id::text, scheduled_start, scheduled_end,
	actual_start, actual_end, status, reminder_sent, supervisor_notified, notes,
	created_at, updated_at`

const insertBreakSQL = `
	INSERT INTO breaks (break_id, person_id, schedule_id, scheduled_start, scheduled_end, status, notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func scanBreak(row rowScanner) (*domain.Break, error) {
	var b domain.Break
	var status string
	if err := row.Scan(
		&b.BreakID,
		&b.PersonID,
		&b.ScheduleID,
		&b.ScheduledStart,
		&b.ScheduledEnd,
		&b.ActualStart,
		&b.ActualEnd,
		&status,
		&b.ReminderSent,
		&b.SupervisorNotified,
		&b.Notes,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = domain.BreakStatus(status)
	return &b, nil
}

func (r *PostgresBreaksRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Break, error) {
	b, err := scanBreak(r.db.QueryRowContext(ctx, `SELECT `+breakColumns+` FROM breaks WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get break: %w", err)
	}
	return b, nil
}

func (r *PostgresBreaksRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Break, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list breaks: %w", err)
	}
	defer rows.Close()

	out := []*domain.Break{}
	for rows.Next() {
		b, err := scanBreak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan break: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBreak by break_id
func (r *PostgresBreaksRepository) GetBreak(ctx context.Context, breakID string) (*domain.Break, error) {
	if _, err := uuid.Parse(breakID); err != nil {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, `break_id = $1`, breakID)
}

// GetBreakForPerson unique (person_id, schedule_id) lookup
func (r *PostgresBreaksRepository) GetBreakForPerson(ctx context.Context, personID, scheduleID string) (*domain.Break, error) {
	return r.getOne(ctx, `person_id = $1 AND schedule_id = $2`, personID, scheduleID)
}

// GetStartedBreak backed by the one-started-per-person partial index
func (r *PostgresBreaksRepository) GetStartedBreak(ctx context.Context, personID string) (*domain.Break, error) {
	return r.getOne(ctx, `person_id = $1 AND status = 'started'`, personID)
}

// ListBreaksBySchedule ordered by slot
func (r *PostgresBreaksRepository) ListBreaksBySchedule(ctx context.Context, scheduleID string) ([]*domain.Break, error) {
	return r.list(ctx,
		`SELECT `+breakColumns+` FROM breaks WHERE schedule_id = $1 ORDER BY scheduled_start, created_at`,
		scheduleID)
}

// CreateBreak insert or return the existing (person, schedule) row
func (r *PostgresBreaksRepository) CreateBreak(ctx context.Context, b *domain.Break) (*domain.Break, error) {
	if b.BreakID == "" {
		b.BreakID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.BreakScheduled
	}
	out, err := scanBreak(r.db.QueryRowContext(ctx,
		insertBreakSQL+` ON CONFLICT (person_id, schedule_id) DO NOTHING RETURNING `+breakColumns,
		b.BreakID, b.PersonID, b.ScheduleID, b.ScheduledStart, b.ScheduledEnd, string(b.Status), b.Notes,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.GetBreakForPerson(ctx, b.PersonID, b.ScheduleID)
		}
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create break: %w", err)
	}
	return out, nil
}

// ListPendingReminders reminder candidates for the sweep
func (r *PostgresBreaksRepository) ListPendingReminders(ctx context.Context, now time.Time, lead time.Duration) ([]*domain.Break, error) {
	return r.list(ctx, `
		SELECT `+breakColumns+` FROM breaks
		WHERE status = 'scheduled' AND reminder_sent = FALSE
		  AND scheduled_start > $1 AND scheduled_start <= $2
		ORDER BY scheduled_start`,
		now, now.Add(lead))
}

// ListOverdue escalation candidates for the sweep
func (r *PostgresBreaksRepository) ListOverdue(ctx context.Context, now time.Time) ([]*domain.Break, error) {
	return r.list(ctx, `
		SELECT `+breakColumns+` FROM breaks
		WHERE status = 'started' AND supervisor_notified = FALSE AND scheduled_end < $1
		ORDER BY scheduled_end`,
		now)
}

// TransitionBreak status-guarded update; re-reads nothing, the WHERE clause is the guard
func (r *PostgresBreaksRepository) TransitionBreak(ctx context.Context, t BreakTransition) (*domain.Break, error) {
	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}

	b, err := scanBreak(r.db.QueryRowContext(ctx, `
		UPDATE breaks SET
			status = $2::varchar,
			actual_start = CASE WHEN $2::varchar = 'started' THEN $3::timestamptz ELSE actual_start END,
			actual_end = CASE WHEN $2::varchar = 'completed' THEN $3::timestamptz ELSE actual_end END,
			notes = CASE
				WHEN $4::text = '' THEN notes
				WHEN notes IS NULL OR notes = '' THEN $4::text
				ELSE notes || '; ' || $4::text
			END,
			updated_at = NOW()
		WHERE break_id = $1 AND status = ANY($5)
		RETURNING `+breakColumns,
		t.BreakID, string(t.To), t.At, t.Notes, pq.Array(from),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetBreak(ctx, t.BreakID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to transition break: %w", err)
	}
	return b, nil
}

// RescheduleBreak moves a break that has not been reminded or started
func (r *PostgresBreaksRepository) RescheduleBreak(ctx context.Context, breakID string, start, end time.Time, notes string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE breaks SET
			scheduled_start = $2,
			scheduled_end = $3,
			notes = COALESCE(NULLIF($4::text, ''), notes),
			updated_at = NOW()
		WHERE break_id = $1 AND status = 'scheduled' AND reminder_sent = FALSE
	`, breakID, start, end, notes)
	if err != nil {
		return false, fmt.Errorf("failed to reschedule break: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RebookBreak moves a scheduled or reminded break and clears its reminder so
// it is sent again for the new slot
func (r *PostgresBreaksRepository) RebookBreak(ctx context.Context, breakID string, start, end time.Time, notes string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE breaks SET
			scheduled_start = $2,
			scheduled_end = $3,
			status = 'scheduled',
			reminder_sent = FALSE,
			notes = COALESCE(NULLIF($4::text, ''), notes),
			updated_at = NOW()
		WHERE break_id = $1 AND status IN ('scheduled', 'reminded')
	`, breakID, start, end, notes)
	if err != nil {
		return false, fmt.Errorf("failed to rebook break: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkReminderSent claims the reminder of a scheduled break and moves it to reminded
func (r *PostgresBreaksRepository) MarkReminderSent(ctx context.Context, breakID string) (bool, error) {
	return r.claim(ctx, breakID, `
		UPDATE breaks SET
			reminder_sent = TRUE,
			status = 'reminded',
			updated_at = NOW()
		WHERE break_id = $1 AND status = 'scheduled' AND reminder_sent = FALSE`)
}

// MarkSupervisorNotified claims the overdue escalation of a started break
func (r *PostgresBreaksRepository) MarkSupervisorNotified(ctx context.Context, breakID string) (bool, error) {
	return r.claim(ctx, breakID, `
		UPDATE breaks SET supervisor_notified = TRUE, updated_at = NOW()
		WHERE break_id = $1 AND status = 'started' AND supervisor_notified = FALSE`)
}

func (r *PostgresBreaksRepository) claim(ctx context.Context, breakID, query string) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, breakID)
	if err != nil {
		return false, fmt.Errorf("failed to claim break %s: %w", breakID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := r.GetBreak(ctx, breakID); err != nil {
		return false, err
	}
	return false, nil
}
