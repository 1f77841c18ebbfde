package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage one entry of a Redis stream
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// PublishToStream XADDs values, converting each to its string form.
// maxLen > 0 caps the stream approximately (MAXLEN ~).
func PublishToStream(ctx context.Context, client *redis.Client, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	streamValues := make(map[string]interface{}, len(values))
	for k, v := range values {
		var strValue string
		switch val := v.(type) {
		case string:
			strValue = val
		case []byte:
			strValue = string(val)
		case int:
			strValue = fmt.Sprintf("%d", val)
		case int64:
			strValue = fmt.Sprintf("%d", val)
		case bool:
			if val {
				strValue = "true"
			} else {
				strValue = "false"
			}
		default:
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			strValue = string(jsonBytes)
		}
		streamValues[k] = strValue
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: streamValues,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return client.XAdd(ctx, args).Result()
}

// PublishJSONToStream publishes data as JSON under "data" with a unix "timestamp"
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, maxLen int64, eventType string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return PublishToStream(ctx, client, stream, maxLen, map[string]interface{}{
		"type":      eventType,
		"data":      string(jsonBytes),
		"timestamp": time.Now().Unix(),
	})
}

// ReadStream returns up to count entries starting at id (inclusive); "-" reads from the beginning
func ReadStream(ctx context.Context, client *redis.Client, stream string, start string, count int64) ([]StreamMessage, error) {
	if start == "" {
		start = "-"
	}
	msgs, err := client.XRangeN(ctx, stream, start, "+", count).Result()
	if err != nil {
		if err == redis.Nil {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	messages := make([]StreamMessage, 0, len(msgs))
	for _, msg := range msgs {
		messages = append(messages, StreamMessage{
			Stream: stream,
			ID:     msg.ID,
			Values: msg.Values,
		})
	}
	return messages, nil
}
