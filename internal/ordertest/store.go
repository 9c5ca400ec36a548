// Package ordertest provides in-memory order and webhook audit stores that
// follow the status rules of the PostgreSQL stores, for use in tests.
package ordertest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceylongems/storefront/internal/db"
	"github.com/ceylongems/storefront/internal/models"
)

type Store struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	now    func() time.Time

	upserts int
}

func NewStore() *Store {
	return &Store{
		orders: make(map[string]*models.Order),
		now:    time.Now,
	}
}

// Put seeds an order as-is.
func (s *Store) Put(order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.OrderNumber] = clone(order)
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Upserts returns how many times UpsertPending was called.
func (s *Store) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func (s *Store) UpsertPending(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++

	existing, ok := s.orders[order.OrderNumber]
	if ok {
		if existing.PaymentStatus != models.PaymentPending && existing.PaymentStatus != models.PaymentFailed {
			return fmt.Errorf("%w: order %s is no longer pending", db.ErrInvalidStatusTransition, order.OrderNumber)
		}
		metadata := maps.Clone(existing.Metadata)
		maps.Copy(metadata, order.Metadata)
		next := clone(order)
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		next.LastEventAt = existing.LastEventAt
		next.Metadata = metadata
		next.PaymentStatus = models.PaymentPending
		next.UpdatedAt = s.now()
		s.orders[order.OrderNumber] = next
		order.ID = next.ID
		order.CreatedAt = next.CreatedAt
		order.PaymentStatus = models.PaymentPending
		return nil
	}

	stored := clone(order)
	stored.ID = uuid.New()
	stored.PaymentStatus = models.PaymentPending
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	s.orders[order.OrderNumber] = stored
	order.ID = stored.ID
	order.CreatedAt = stored.CreatedAt
	order.PaymentStatus = models.PaymentPending
	return nil
}

func (s *Store) GetByOrderNumber(_ context.Context, orderNumber string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderNumber]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	return clone(order), nil
}

func (s *Store) GetByMetadataValue(_ context.Context, key, value string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *models.Order
	for _, order := range s.orders {
		if v, ok := order.Metadata[key].(string); ok && v == value && value != "" {
			if found == nil || order.CreatedAt.After(found.CreatedAt) {
				found = order
			}
		}
	}
	if found == nil {
		return nil, db.ErrOrderNotFound
	}
	return clone(found), nil
}

func (s *Store) MergeMetadata(_ context.Context, orderNumber string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderNumber]
	if !ok {
		return db.ErrOrderNotFound
	}
	maps.Copy(order.Metadata, metadata)
	return nil
}

func (s *Store) MarkPaid(_ context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error {
	return s.transition(orderNumber, models.PaymentPaid, models.StatusProcessing,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed, models.PaymentPaid}, metadata, occurredAt)
}

func (s *Store) MarkFailed(_ context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error {
	return s.transition(orderNumber, models.PaymentFailed, models.StatusCancelled,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed}, metadata, occurredAt)
}

func (s *Store) MarkRefunded(_ context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error {
	return s.transition(orderNumber, models.PaymentRefunded, models.StatusRefunded,
		[]models.PaymentStatus{models.PaymentPaid, models.PaymentRefunded}, metadata, occurredAt)
}

func (s *Store) transition(orderNumber string, to models.PaymentStatus, status models.OrderStatus, from []models.PaymentStatus, metadata map[string]any, occurredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderNumber]
	if !ok || !slices.Contains(from, order.PaymentStatus) {
		return fmt.Errorf("%w: unexpected status", db.ErrInvalidStatusTransition)
	}
	if !order.LastEventAt.IsZero() && occurredAt.Before(order.LastEventAt) {
		return fmt.Errorf("%w: newer event already applied", db.ErrInvalidStatusTransition)
	}

	if order.PaymentStatus != to {
		order.Status = status
	}
	order.PaymentStatus = to
	if order.Metadata == nil {
		order.Metadata = map[string]any{}
	}
	maps.Copy(order.Metadata, metadata)
	if occurredAt.After(order.LastEventAt) {
		order.LastEventAt = occurredAt
	}
	order.UpdatedAt = s.now()
	return nil
}

func clone(order *models.Order) *models.Order {
	c := *order
	c.Items = slices.Clone(order.Items)
	c.Metadata = maps.Clone(order.Metadata)
	return &c
}
