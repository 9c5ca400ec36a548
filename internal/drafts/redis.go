package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceylongems/storefront/internal/cache"
	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/crypto"
)

const (
	redisKeyPrefix = "storefront:draft:"
	redisTimeout   = 5 * time.Second
)

// RedisStore keeps drafts in Redis. With a sealer, payloads are encrypted and
// bound to their order reference.
type RedisStore struct {
	client *redis.Client
	sealer crypto.Sealer
}

func NewRedisStore(ctx context.Context, connectionString string, sealer crypto.Sealer) (*RedisStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	client, err := cache.NewRedisClient(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	return &RedisStore{client: client, sealer: sealer}, nil
}

func (r *RedisStore) Get(ctx context.Context, reference string) (*checkout.Draft, error) {
	if reference == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, redisDraftKey(reference)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	if r.sealer != nil {
		val, err = r.sealer.Open(val, reference)
		if err != nil {
			return nil, fmt.Errorf("failed to open draft: %w", err)
		}
	}

	var draft checkout.Draft
	if err := json.Unmarshal(val, &draft); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return &draft, nil
}

func (r *RedisStore) Save(ctx context.Context, draft *checkout.Draft, ttl time.Duration) error {
	if draft == nil || draft.OrderReference == "" {
		return fmt.Errorf("draft with order reference is required")
	}

	val, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if r.sealer != nil {
		val, err = r.sealer.Seal(val, draft.OrderReference)
		if err != nil {
			return fmt.Errorf("failed to seal draft: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := r.client.Set(ctx, redisDraftKey(draft.OrderReference), val, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, reference string) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := r.client.Del(ctx, redisDraftKey(reference)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func redisDraftKey(reference string) string {
	return redisKeyPrefix + reference
}
