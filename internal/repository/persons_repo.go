package repository

import (
	"context"

	"github.com/laraveldev/tg-bot/internal/domain"
)

// PersonsFilter zero values match everything
type PersonsFilter struct {
	Role          domain.Role
	Status        domain.PersonStatus
	ShiftID       string
	AvailableOnly bool // is_available_for_lunch = true
}

// PersonsRepository roster storage
type PersonsRepository interface {
	GetPerson(ctx context.Context, personID string) (*domain.Person, error)
	// GetPersonByUserID lookup by external_user_id (authoritative across chats)
	GetPersonByUserID(ctx context.Context, userID string) (*domain.Person, error)
	GetPersonByChatID(ctx context.Context, chatID string) (*domain.Person, error)

	// ListPersons ordered by lunch_order asc nulls last, created_at, person_id
	ListPersons(ctx context.Context, filter PersonsFilter) ([]*domain.Person, error)
	// ListPersonsByIDs unknown ids are skipped; order is unspecified
	ListPersonsByIDs(ctx context.Context, ids []string) ([]*domain.Person, error)

	// CreatePerson assigns PersonID when empty. ErrConflict on duplicate user or chat id.
	CreatePerson(ctx context.Context, p *domain.Person) error
	// UpdatePerson writes identity, profile, role and lunch fields (not status)
	UpdatePerson(ctx context.Context, p *domain.Person) error
	UpdatePersonStatus(ctx context.Context, personID string, status domain.PersonStatus) error
}
