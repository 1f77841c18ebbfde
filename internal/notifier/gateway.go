package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/repository"
	"github.com/laraveldev/tg-bot/internal/service"
)

// MessageSender delivers one text message to a chat
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Gateway service.Notifier over a chat sender. Supervisors are read from the
// roster on every call so role changes apply immediately.
type Gateway struct {
	sender  MessageSender
	persons repository.PersonsRepository
	events  service.EventPublisher
	clock   service.Clock
	timeout time.Duration
	logger  *zap.Logger
}

var _ service.Notifier = (*Gateway)(nil)

// NewGateway events and clock may be nil; timeout bounds each send
func NewGateway(sender MessageSender, persons repository.PersonsRepository, events service.EventPublisher, clock service.Clock, timeout time.Duration, logger *zap.Logger) *Gateway {
	if events == nil {
		events = NopPublisher{}
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		sender:  sender,
		persons: persons,
		events:  events,
		clock:   clock,
		timeout: timeout,
		logger:  logger,
	}
}

// NotifyPerson sends text to the person's bound chat
func (g *Gateway) NotifyPerson(ctx context.Context, p *domain.Person, text string) error {
	err := g.send(ctx, p.ExternalChatID, text)
	g.record(ctx, p.PersonID, "person", err)
	if err != nil {
		return fmt.Errorf("notify person %s: %w", p.PersonID, err)
	}
	return nil
}

// NotifySupervisors sends text to every supervisor; one failed recipient does not stop the rest
func (g *Gateway) NotifySupervisors(ctx context.Context, text string) error {
	supervisors, err := g.persons.ListPersons(ctx, repository.PersonsFilter{Role: domain.RoleSupervisor})
	if err != nil {
		return fmt.Errorf("list supervisors: %w", err)
	}
	if len(supervisors) == 0 {
		g.logger.Debug("No supervisors registered, dropping notification")
		return nil
	}

	var errs []error
	for _, p := range supervisors {
		err := g.send(ctx, p.ExternalChatID, text)
		g.record(ctx, p.PersonID, "supervisors", err)
		if err != nil {
			g.logger.Warn("Supervisor notification failed",
				zap.String("person_id", p.PersonID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("supervisor %s: %w", p.PersonID, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Gateway) send(ctx context.Context, chatID, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.sender.SendMessage(sendCtx, chatID, text)
}

// record emits notification.sent; publisher failures are only logged
func (g *Gateway) record(ctx context.Context, personID, target string, sendErr error) {
	ev := domain.NewEvent(domain.EventNotification, g.clock.Now())
	ev.PersonID = personID
	ev.Data = map[string]any{"target": target, "delivered": sendErr == nil}
	if err := g.events.Publish(ctx, ev); err != nil {
		g.logger.Debug("Failed to publish notification event", zap.Error(err))
	}
}
