package redis

import (
	"context"

	"github.com/laraveldev/tg-bot/common/config"

	"github.com/go-redis/redis/v8"
)

// Client go-redis client alias so callers need not import go-redis directly
type Client = redis.Client

// Nil reply sentinel
const Nil = redis.Nil

// NewRedisClient creates a client from cfg; no connection is made until first use
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks connectivity
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes client if non-nil
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
