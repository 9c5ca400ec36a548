package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ceylongems/storefront/internal/checkout"
)

// MemoryStore keeps drafts in process. Entries are stored encoded so callers
// never share a pointer with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, reference string) (*checkout.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked(s.now())

	entry, ok := s.entries[reference]
	if !ok {
		return nil, ErrNotFound
	}

	var draft checkout.Draft
	if err := json.Unmarshal(entry.payload, &draft); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return &draft, nil
}

func (s *MemoryStore) Save(_ context.Context, draft *checkout.Draft, ttl time.Duration) error {
	if draft == nil || draft.OrderReference == "" {
		return fmt.Errorf("draft with order reference is required")
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupExpiredLocked(s.now())

	s.entries[draft.OrderReference] = memoryEntry{
		payload:   payload,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, reference)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) cleanupExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
