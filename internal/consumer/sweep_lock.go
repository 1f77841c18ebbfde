package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SweepLockKey Redis key guarding the sweep across service replicas
const SweepLockKey = "lunch:sweep:lock"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SweepLock SET NX lock with a TTL; one holder per key across replicas
type SweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewSweepLock lock on key with a per-instance token
func NewSweepLock(client *redis.Client, key string, ttl time.Duration) *SweepLock {
	if key == "" {
		key = SweepLockKey
	}
	return &SweepLock{client: client, key: key, ttl: ttl, token: uuid.NewString()}
}

// Acquire true when this instance now holds the lock
func (l *SweepLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock if this instance still holds it
func (l *SweepLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release sweep lock: %w", err)
	}
	return nil
}
