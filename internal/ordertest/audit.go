package ordertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceylongems/storefront/internal/models"
)

// AuditStore records webhook deliveries keyed by provider and event id.
type AuditStore struct {
	mu     sync.Mutex
	events map[string]*models.WebhookEvent
	counts map[string]int

	RecordErr error
}

func NewAuditStore() *AuditStore {
	return &AuditStore{
		events: make(map[string]*models.WebhookEvent),
		counts: make(map[string]int),
	}
}

func (a *AuditStore) Record(_ context.Context, event *models.WebhookEvent) (bool, error) {
	if a.RecordErr != nil {
		return false, a.RecordErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := event.Provider + ":" + event.EventID
	a.counts[key]++
	if existing, ok := a.events[key]; ok {
		event.ID = existing.ID
		event.Outcome = existing.Outcome
		event.ReceivedAt = existing.ReceivedAt
		event.ProcessedAt = existing.ProcessedAt
		return !existing.ProcessedAt.IsZero(), nil
	}

	stored := *event
	stored.ID = uuid.New()
	stored.Outcome = models.OutcomeReceived
	stored.ReceivedAt = time.Now()
	a.events[key] = &stored
	event.ID = stored.ID
	event.Outcome = stored.Outcome
	event.ReceivedAt = stored.ReceivedAt
	return false, nil
}

func (a *AuditStore) MarkProcessed(_ context.Context, id uuid.UUID, outcome models.WebhookOutcome) error {
	return a.update(id, func(e *models.WebhookEvent) {
		e.Outcome = outcome
		e.Error = ""
		e.ProcessedAt = time.Now()
	})
}

func (a *AuditStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return a.update(id, func(e *models.WebhookEvent) {
		e.Outcome = models.OutcomeFailed
		e.Error = reason
	})
}

// Event returns a copy of the stored event.
func (a *AuditStore) Event(provider, eventID string) (models.WebhookEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.events[provider+":"+eventID]
	if !ok {
		return models.WebhookEvent{}, false
	}
	return *e, true
}

// Deliveries returns how many times the event was recorded.
func (a *AuditStore) Deliveries(provider, eventID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[provider+":"+eventID]
}

func (a *AuditStore) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

func (a *AuditStore) update(id uuid.UUID, apply func(*models.WebhookEvent)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e.ID == id {
			apply(e)
			return nil
		}
	}
	return fmt.Errorf("webhook event %s not found", id)
}
