package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/service"
)

// PersonHeader carries the acting person's id on every request
const PersonHeader = "X-Person-ID"

type actorKey struct{}

// PersonLookup resolves the acting person
type PersonLookup interface {
	Person(ctx context.Context, personID string) (*domain.Person, error)
}

func actorFrom(ctx context.Context) *domain.Person {
	p, _ := ctx.Value(actorKey{}).(*domain.Person)
	return p
}

// Auth resolves X-Person-ID into the request's actor
type Auth struct {
	persons PersonLookup
	logger  *zap.Logger
}

func NewAuth(persons PersonLookup, logger *zap.Logger) *Auth {
	return &Auth{persons: persons, logger: logger}
}

// RequirePerson rejects requests without a known actor
func (a *Auth) RequirePerson(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.resolve(r)
		if err != nil {
			writeJSON(w, statusFor(err), Fail(err.Error()))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, p)))
	}
}

// RequireSupervisor rejects requests whose actor is not a supervisor
func (a *Auth) RequireSupervisor(next http.HandlerFunc) http.HandlerFunc {
	return a.RequirePerson(func(w http.ResponseWriter, r *http.Request) {
		p := actorFrom(r.Context())
		if !p.IsSupervisor() {
			a.logger.Debug("Supervisor route denied",
				zap.String("person_id", p.PersonID),
				zap.String("path", r.URL.Path),
			)
			writeJSON(w, http.StatusForbidden, Fail(service.ErrForbidden.Error()+": supervisor role required"))
			return
		}
		next(w, r)
	})
}

func (a *Auth) resolve(r *http.Request) (*domain.Person, error) {
	id := r.Header.Get(PersonHeader)
	if id == "" {
		return nil, fmt.Errorf("%w: %s header required", service.ErrForbidden, PersonHeader)
	}
	p, err := a.persons.Person(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown person", service.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
