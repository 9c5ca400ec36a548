//go:build integration

package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ceylongems/storefront/internal/models"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	migrator, err := NewMigrator(pool)
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	if _, err := migrator.Up(); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if err := migrator.Close(); err != nil {
		t.Fatalf("close migrator: %v", err)
	}
	return pool
}

func pendingOrder(number string) *Order {
	return &Order{
		OrderNumber:   number,
		PaymentMethod: models.MethodPayPal,
		Status:        models.StatusPending,
		Customer:      models.Customer{FirstName: "Nimal", LastName: "Perera", Email: "nimal@example.com"},
		Items:         []models.LineItem{{ProductID: "ring-1", Name: "Sapphire Ring", UnitPrice: 10000, Quantity: 1}},
		SubtotalMinor: 10000,
		TotalMinor:    10000,
		Currency:      "LKR",
		Metadata:      map[string]any{"paypal_order_id": "PP-1"},
	}
}

func TestOrderStoreLifecycle(t *testing.T) {
	pool := setupPostgres(t)
	store := NewOrderStore(pool)
	ctx := context.Background()

	if err := store.UpsertPending(ctx, pendingOrder("ORDER-1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// A retried initiation updates the same row.
	retry := pendingOrder("ORDER-1")
	retry.Metadata = map[string]any{"paypal_order_id": "PP-2"}
	if err := store.UpsertPending(ctx, retry); err != nil {
		t.Fatalf("upsert retry: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE order_number = 'ORDER-1'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one order row, got %d", count)
	}

	captured := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	metadata := map[string]any{"paypal_capture_id": "CAP-1", "paypal_captured_amount": "100.00"}
	if err := store.MarkPaid(ctx, "ORDER-1", metadata, captured); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := store.MarkPaid(ctx, "ORDER-1", metadata, captured); err != nil {
		t.Fatalf("mark paid twice: %v", err)
	}

	order, err := store.GetByOrderNumber(ctx, "ORDER-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.PaymentStatus != models.PaymentPaid || order.Status != models.StatusProcessing {
		t.Fatalf("unexpected status %s/%s", order.PaymentStatus, order.Status)
	}
	if order.MetadataString("paypal_order_id") != "PP-2" || order.MetadataString("paypal_captured_amount") != "100.00" {
		t.Fatalf("unexpected metadata %+v", order.Metadata)
	}

	if err := store.MarkFailed(ctx, "ORDER-1", nil, captured.Add(time.Minute)); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected paid order not to fail, got %v", err)
	}
	if err := store.MarkRefunded(ctx, "ORDER-1", nil, captured.Add(-time.Minute)); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected stale refund to be rejected, got %v", err)
	}
	if err := store.UpsertPending(ctx, pendingOrder("ORDER-1")); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected paid order not to be reset, got %v", err)
	}

	byCapture, err := store.GetByMetadataValue(ctx, "paypal_capture_id", "CAP-1")
	if err != nil {
		t.Fatalf("get by capture: %v", err)
	}
	if byCapture.OrderNumber != "ORDER-1" {
		t.Fatalf("unexpected order %s", byCapture.OrderNumber)
	}

	if _, err := store.GetByOrderNumber(ctx, "ORDER-404"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestWebhookEventStoreDedupe(t *testing.T) {
	pool := setupPostgres(t)
	store := NewWebhookEventStore(pool)
	ctx := context.Background()

	event := &WebhookEvent{
		Provider:    "paypal",
		EventID:     "WH-1",
		EventType:   "PAYMENT.CAPTURE.COMPLETED",
		OrderNumber: "ORDER-1",
		Payload:     []byte(`{"id":"WH-1"}`),
	}
	processed, err := store.Record(ctx, event)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if processed {
		t.Fatalf("expected new event to be unprocessed")
	}
	if err := store.MarkProcessed(ctx, event.ID, models.OutcomeApplied); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	replay := &WebhookEvent{Provider: "paypal", EventID: "WH-1", EventType: "PAYMENT.CAPTURE.COMPLETED", Payload: []byte(`{"id":"WH-1"}`)}
	processed, err = store.Record(ctx, replay)
	if err != nil {
		t.Fatalf("record replay: %v", err)
	}
	if !processed || replay.ID != event.ID {
		t.Fatalf("expected replay to resolve to the processed row")
	}

	var deliveries int
	if err := pool.QueryRow(ctx, `SELECT delivery_count FROM webhook_events WHERE id = $1`, event.ID).Scan(&deliveries); err != nil {
		t.Fatalf("delivery count: %v", err)
	}
	if deliveries != 2 {
		t.Fatalf("expected 2 deliveries, got %d", deliveries)
	}
}

func TestWebhookEventStoreKeepsPayloadVerbatim(t *testing.T) {
	pool := setupPostgres(t)
	store := NewWebhookEventStore(pool)
	ctx := context.Background()

	body := []byte("not json, but signed")
	event := &WebhookEvent{Provider: "payzy", EventID: "sha256:abc", EventType: "unparsed", Payload: body}
	if _, err := store.Record(ctx, event); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.MarkFailed(ctx, event.ID, "failed to decode payzy event"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	var (
		stored  []byte
		outcome string
	)
	if err := pool.QueryRow(ctx, `SELECT payload, outcome FROM webhook_events WHERE id = $1`, event.ID).Scan(&stored, &outcome); err != nil {
		t.Fatalf("select: %v", err)
	}
	if string(stored) != string(body) || outcome != string(models.OutcomeFailed) {
		t.Fatalf("unexpected row: payload=%q outcome=%s", stored, outcome)
	}
}
