package cache

// Package cache provides webhook idempotency keys and rate-limit counters.

import (
	"context"
	"fmt"
	"time"
)

// Provider is a string cache with expiring keys and counters.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr increments a counter, starting its ttl on first use, and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

func WebhookKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}

// RateLimitKey buckets a client into a fixed window starting at windowStart.
func RateLimitKey(scope, client string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, client, windowStart.Unix())
}
