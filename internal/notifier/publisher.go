package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	commonredis "github.com/laraveldev/tg-bot/common/redis"
	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/service"
)

// RedisStreamPublisher appends events to a capped Redis stream
type RedisStreamPublisher struct {
	client *commonredis.Client
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *commonredis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, ev domain.Event) error {
	if _, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, string(ev.Type), ev); err != nil {
		return fmt.Errorf("publish %s to stream %s: %w", ev.Type, p.stream, err)
	}
	return nil
}

// StreamEvent an event read back from the stream with its entry id
type StreamEvent struct {
	ID    string       `json:"id"`
	Event domain.Event `json:"event"`
}

// Events up to count entries from since (inclusive, "-" or empty for the oldest kept).
// Entries whose payload does not decode are skipped.
func (p *RedisStreamPublisher) Events(ctx context.Context, since string, count int64) ([]StreamEvent, error) {
	msgs, err := commonredis.ReadStream(ctx, p.client, p.stream, since, count)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", p.stream, err)
	}
	out := make([]StreamEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, _ := msg.Values["data"].(string)
		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		out = append(out, StreamEvent{ID: msg.ID, Event: ev})
	}
	return out, nil
}

// mqttPublisher the part of common/mqtt.Client the event publisher uses
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher publishes events as JSON on topic/<event type>
type MQTTPublisher struct {
	client mqttPublisher
	topic  string
	qos    byte
}

func NewMQTTPublisher(client mqttPublisher, topic string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

func (p *MQTTPublisher) Publish(_ context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.client.Publish(p.topic+"/"+string(ev.Type), p.qos, false, payload)
}

// MultiPublisher fans an event out to every publisher
type MultiPublisher struct {
	publishers []service.EventPublisher
	logger     *zap.Logger
}

func NewMultiPublisher(logger *zap.Logger, publishers ...service.EventPublisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers, logger: logger}
}

// Publish tries every publisher and joins their failures
func (m *MultiPublisher) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		m.logger.Debug("Event fan-out partially failed", zap.String("event_type", string(ev.Type)), zap.Int("failures", len(errs)))
	}
	return errors.Join(errs...)
}

// Len number of wired publishers
func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}

// NopPublisher drops events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }
