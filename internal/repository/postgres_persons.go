package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// PostgresPersonsRepository persons table
type PostgresPersonsRepository struct {
	db *sql.DB
}

// NewPostgresPersonsRepository creates the persons repository
func NewPostgresPersonsRepository(db *sql.DB) *PostgresPersonsRepository {
	return &PostgresPersonsRepository{db: db}
}

var _ PersonsRepository = (*PostgresPersonsRepository)(nil)

const personColumns = `
	person_id::text,
	external_chat_id,
	external_user_id,
	first_name,
	last_name,
	username,
	phone,
	role,
	status,
	is_available_for_lunch,
	lunch_order,
	shift_id::text,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*domain.Person, error) {
	var p domain.Person
	var role, status string
	err := row.Scan(
		&p.PersonID,
		&p.ExternalChatID,
		&p.ExternalUserID,
		&p.FirstName,
		&p.LastName,
		&p.Username,
		&p.Phone,
		&role,
		&status,
		&p.IsAvailableForLunch,
		&p.LunchOrder,
		&p.ShiftID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	p.Status = domain.PersonStatus(status)
	return &p, nil
}

func (r *PostgresPersonsRepository) getOne(ctx context.Context, where string, arg any) (*domain.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE ` + where
	p, err := scanPerson(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// GetPerson by person_id
func (r *PostgresPersonsRepository) GetPerson(ctx context.Context, personID string) (*domain.Person, error) {
	if _, err := uuid.Parse(personID); err != nil {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, "person_id = $1", personID)
}

// GetPersonByUserID by external_user_id
func (r *PostgresPersonsRepository) GetPersonByUserID(ctx context.Context, userID string) (*domain.Person, error) {
	return r.getOne(ctx, "external_user_id = $1", userID)
}

// GetPersonByChatID by external_chat_id
func (r *PostgresPersonsRepository) GetPersonByChatID(ctx context.Context, chatID string) (*domain.Person, error) {
	return r.getOne(ctx, "external_chat_id = $1", chatID)
}

// ListPersons filtered roster in lunch order
func (r *PostgresPersonsRepository) ListPersons(ctx context.Context, filter PersonsFilter) ([]*domain.Person, error) {
	where := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if filter.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, string(filter.Role))
		argIdx++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ShiftID != "" {
		where = append(where, fmt.Sprintf("shift_id = $%d", argIdx))
		args = append(args, filter.ShiftID)
		argIdx++
	}
	if filter.AvailableOnly {
		where = append(where, "is_available_for_lunch = TRUE")
	}

	query := `SELECT ` + personColumns + ` FROM persons WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY lunch_order ASC NULLS LAST, created_at ASC, person_id ASC`

	return r.queryPersons(ctx, query, args...)
}

// ListPersonsByIDs persons whose id is in ids
func (r *PostgresPersonsRepository) ListPersonsByIDs(ctx context.Context, ids []string) ([]*domain.Person, error) {
	if len(ids) == 0 {
		return []*domain.Person{}, nil
	}
	query := `SELECT ` + personColumns + ` FROM persons WHERE person_id::text = ANY($1)`
	return r.queryPersons(ctx, query, pq.Array(ids))
}

func (r *PostgresPersonsRepository) queryPersons(ctx context.Context, query string, args ...any) ([]*domain.Person, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	out := []*domain.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePerson inserts p; ErrConflict on duplicate chat or user id
func (r *PostgresPersonsRepository) CreatePerson(ctx context.Context, p *domain.Person) error {
	if p.PersonID == "" {
		p.PersonID = uuid.NewString()
	}
	query := `
		INSERT INTO persons (
			person_id, external_chat_id, external_user_id, first_name, last_name, username, phone,
			role, status, is_available_for_lunch, lunch_order, shift_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.PersonID,
		p.ExternalChatID,
		p.ExternalUserID,
		p.FirstName,
		p.LastName,
		p.Username,
		p.Phone,
		string(p.Role),
		string(p.Status),
		p.IsAvailableForLunch,
		p.LunchOrder,
		p.ShiftID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// UpdatePerson writes every mutable column except status
func (r *PostgresPersonsRepository) UpdatePerson(ctx context.Context, p *domain.Person) error {
	query := `
		UPDATE persons SET
			external_chat_id = $2,
			external_user_id = $3,
			first_name = $4,
			last_name = $5,
			username = $6,
			phone = $7,
			role = $8,
			is_available_for_lunch = $9,
			lunch_order = $10,
			shift_id = $11,
			updated_at = NOW()
		WHERE person_id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.PersonID,
		p.ExternalChatID,
		p.ExternalUserID,
		p.FirstName,
		p.LastName,
		p.Username,
		p.Phone,
		string(p.Role),
		p.IsAvailableForLunch,
		p.LunchOrder,
		p.ShiftID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update person: %w", err)
	}
	return nil
}

// UpdatePersonStatus sets status only
func (r *PostgresPersonsRepository) UpdatePersonStatus(ctx context.Context, personID string, status domain.PersonStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE persons SET status = $2, updated_at = NOW() WHERE person_id = $1`,
		personID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update person status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
