package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/repository"
)

var (
	// ErrNotFound re-exported so callers can match service and repository lookups alike
	ErrNotFound = repository.ErrNotFound
	// ErrConflict precondition on entity state not met (double start, end without start, lost race)
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument malformed request (duplicate ids, unknown persons, missing chat id)
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden caller lacks the supervisor role
	ErrForbidden = errors.New("forbidden")
)

// maxCASRetries bound on optimistic retries of cursor and queue updates
const maxCASRetries = 5

// AdminChecker "is this user an administrator of this group chat"
type AdminChecker interface {
	IsGroupAdmin(ctx context.Context, chatID, userID string) (bool, error)
}

// ChatMember one entry of a group's administrator list
type ChatMember struct {
	UserID  string
	Profile domain.Profile
	IsBot   bool
	Status  string // creator, administrator, member, ...
}

// AdminLister lists a group's administrators for bulk role sync
type AdminLister interface {
	GroupAdministrators(ctx context.Context, chatID string) ([]ChatMember, error)
}

// MemberCounter group size for roster statistics
type MemberCounter interface {
	GetChatMemberCount(ctx context.Context, chatID string) (int, error)
}

// Notifier delivers chat messages; failures are logged by callers and never roll back state
type Notifier interface {
	NotifyPerson(ctx context.Context, p *domain.Person, text string) error
	NotifySupervisors(ctx context.Context, text string) error
}

// EventPublisher fan-out of domain events
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Clock injected time source
type Clock interface {
	Now() time.Time
}

// SystemClock wall clock in a fixed location
type SystemClock struct {
	Location *time.Location
}

// Now current time in c.Location (UTC when unset)
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time { return f() }

type nopNotifier struct{}

func (nopNotifier) NotifyPerson(context.Context, *domain.Person, string) error { return nil }
func (nopNotifier) NotifySupervisors(context.Context, string) error           { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }

// publish logs and swallows publisher failures
func publish(ctx context.Context, pub EventPublisher, logger *zap.Logger, ev domain.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish lunch event",
			zap.String("event_type", string(ev.Type)),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}
