package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ceylongems/storefront/internal/models"
)

// WebhookEventStore is the audit log of verified inbound webhook events.
type WebhookEventStore struct {
	pool *pgxpool.Pool
}

func NewWebhookEventStore(pool *pgxpool.Pool) *WebhookEventStore {
	return &WebhookEventStore{pool: pool}
}

// Record stores a delivery. Redeliveries of the same provider event bump the
// delivery count on the existing row; processed reports whether that row
// already finished processing.
func (s *WebhookEventStore) Record(ctx context.Context, event *WebhookEvent) (processed bool, err error) {
	if event == nil || event.Provider == "" || event.EventID == "" {
		return false, fmt.Errorf("webhook event with provider and event id is required")
	}

	query := `
		INSERT INTO webhook_events (provider, event_id, event_type, order_number, payload)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (provider, event_id) DO UPDATE
		SET delivery_count = webhook_events.delivery_count + 1,
		    last_received_at = NOW()
		RETURNING id, outcome, received_at, processed_at
	`
	var (
		outcome     string
		processedAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx, query,
		event.Provider,
		event.EventID,
		event.EventType,
		event.OrderNumber,
		event.Payload,
	).Scan(&event.ID, &outcome, &event.ReceivedAt, &processedAt)
	if err != nil {
		return false, err
	}

	event.Outcome = models.WebhookOutcome(outcome)
	if processedAt.Valid {
		event.ProcessedAt = processedAt.Time
		return true, nil
	}
	return false, nil
}

// MarkProcessed closes out an event so redeliveries are acknowledged without work.
func (s *WebhookEventStore) MarkProcessed(ctx context.Context, id uuid.UUID, outcome models.WebhookOutcome) error {
	query := `UPDATE webhook_events SET outcome = $1, error = NULL, processed_at = NOW() WHERE id = $2`
	_, err := s.pool.Exec(ctx, query, string(outcome), id)
	return err
}

// MarkFailed keeps processed_at empty so a provider retry is processed again.
func (s *WebhookEventStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE webhook_events SET outcome = $1, error = $2 WHERE id = $3`
	_, err := s.pool.Exec(ctx, query, string(models.OutcomeFailed), reason, id)
	return err
}
