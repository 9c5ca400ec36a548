// Package drafts persists in-progress checkouts by order reference.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/crypto"
)

var ErrNotFound = errors.New("draft not found")

type Store interface {
	Get(ctx context.Context, reference string) (*checkout.Draft, error)
	Save(ctx context.Context, draft *checkout.Draft, ttl time.Duration) error
	Delete(ctx context.Context, reference string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
	Sealer                crypto.Sealer
}

func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisConnectionString, cfg.Sealer)
	default:
		return nil, fmt.Errorf("unsupported draft store provider: %s", cfg.Provider)
	}
}
