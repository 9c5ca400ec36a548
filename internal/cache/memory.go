package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type MemoryProvider struct {
	mu    sync.Mutex
	cache *lru.Cache[string, item]
	now   func() time.Time
}

type item struct {
	value     string
	expiresAt time.Time
}

const defaultMemoryCacheSize = 10_000

func NewMemoryProvider() (*MemoryProvider, error) {
	c, err := lru.New[string, item](defaultMemoryCacheSize)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{cache: c, now: time.Now}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.liveLocked(key)
	if !ok {
		return "", ErrNotFound
	}
	return cached.value, nil
}

func (m *MemoryProvider) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Add(key, item{
		value:     value,
		expiresAt: m.now().Add(ttl),
	})
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Remove(key)
	return nil
}

func (m *MemoryProvider) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := item{value: "0", expiresAt: m.now().Add(ttl)}
	if cached, ok := m.liveLocked(key); ok {
		current = cached
	}

	count, err := strconv.ParseInt(current.value, 10, 64)
	if err != nil {
		return 0, errors.New("cached value is not a counter")
	}
	count++
	current.value = strconv.FormatInt(count, 10)
	m.cache.Add(key, current)
	return count, nil
}

func (m *MemoryProvider) Close() error {
	return nil
}

func (m *MemoryProvider) liveLocked(key string) (item, bool) {
	cached, exists := m.cache.Get(key)
	if !exists {
		return item{}, false
	}
	if m.now().After(cached.expiresAt) {
		m.cache.Remove(key)
		return item{}, false
	}
	return cached, true
}

var ErrNotFound = errors.New("key not found")
