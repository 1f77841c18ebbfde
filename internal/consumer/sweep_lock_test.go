package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSweepLock_SingleHolder(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := NewSweepLock(client, "", 30*time.Second)
	b := NewSweepLock(client, "", 30*time.Second)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(SweepLockKey))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// only the holder can release
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists(SweepLockKey))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists(SweepLockKey))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepLock_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := NewSweepLock(client, "custom:lock", 10*time.Second)
	b := NewSweepLock(client, "custom:lock", 10*time.Second)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepLock_RedisDown(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	_, err := NewSweepLock(client, "", time.Second).Acquire(context.Background())
	assert.Error(t, err)
}
