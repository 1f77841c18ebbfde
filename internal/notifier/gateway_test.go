package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/repository"
	"github.com/laraveldev/tg-bot/internal/service"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]string
	fail map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[string][]string{}, fail: map[string]error{}}
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID, text string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("send without deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[chatID]; err != nil {
		return err
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

type captured struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captured) Publish(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func addPerson(t *testing.T, store *repository.MemoryStore, chatID string, role domain.Role) *domain.Person {
	t.Helper()
	p := &domain.Person{ExternalChatID: chatID, FirstName: chatID, Role: role, Status: domain.PersonActive}
	require.NoError(t, store.CreatePerson(context.Background(), p))
	return p
}

var sentAt = time.Date(2024, 5, 6, 11, 55, 0, 0, time.UTC)

func TestGateway_NotifyPerson(t *testing.T) {
	store := repository.NewMemoryStore()
	sender := newFakeSender()
	events := &captured{}
	g := NewGateway(sender, store, events, service.ClockFunc(func() time.Time { return sentAt }), time.Second, zap.NewNop())

	op := addPerson(t, store, "op-chat", domain.RoleOperator)
	require.NoError(t, g.NotifyPerson(context.Background(), op, "your group is up"))
	assert.Equal(t, []string{"your group is up"}, sender.sent["op-chat"])

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.EventNotification, events.events[0].Type)
	assert.Equal(t, op.PersonID, events.events[0].PersonID)
	assert.Equal(t, true, events.events[0].Data["delivered"])
	assert.Equal(t, sentAt, events.events[0].OccurredAt)
}

func TestGateway_NotifySupervisorsContinuesPastFailures(t *testing.T) {
	store := repository.NewMemoryStore()
	sender := newFakeSender()
	g := NewGateway(sender, store, nil, nil, time.Second, zap.NewNop())

	addPerson(t, store, "sup-a", domain.RoleSupervisor)
	broken := addPerson(t, store, "sup-b", domain.RoleSupervisor)
	addPerson(t, store, "sup-c", domain.RoleSupervisor)
	addPerson(t, store, "op", domain.RoleOperator)
	sender.fail["sup-b"] = ErrTelegram

	err := g.NotifySupervisors(context.Background(), "Dana started lunch")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTelegram)
	assert.Contains(t, err.Error(), broken.PersonID)

	assert.Len(t, sender.sent["sup-a"], 1)
	assert.Len(t, sender.sent["sup-c"], 1)
	assert.Empty(t, sender.sent["op"])
}

func TestGateway_NoSupervisors(t *testing.T) {
	store := repository.NewMemoryStore()
	sender := newFakeSender()
	g := NewGateway(sender, store, nil, nil, 0, zap.NewNop())

	addPerson(t, store, "op", domain.RoleOperator)
	require.NoError(t, g.NotifySupervisors(context.Background(), "hello"))
	assert.Empty(t, sender.sent)
}
