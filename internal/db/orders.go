package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ceylongems/storefront/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `id, order_number, payment_method, payment_status, status, customer, items,
	subtotal_minor, shipping_minor, discount_minor, total_minor, currency, metadata,
	last_event_at, created_at, updated_at`

// UpsertPending records a pending order, or refreshes it while it is still
// pending or after a failed payment. A retried checkout with the same order
// number never creates a second row.
func (s *OrderStore) UpsertPending(ctx context.Context, order *Order) error {
	if order == nil || order.OrderNumber == "" {
		return fmt.Errorf("order with order number is required")
	}

	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return err
	}
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	metadataJSON, err := marshalMetadata(order.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (order_number, payment_method, payment_status, status, customer, items,
		                    subtotal_minor, shipping_minor, discount_minor, total_minor, currency, metadata)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_number) DO UPDATE
		SET payment_method = EXCLUDED.payment_method,
		    payment_status = 'pending',
		    status = EXCLUDED.status,
		    customer = EXCLUDED.customer,
		    items = EXCLUDED.items,
		    subtotal_minor = EXCLUDED.subtotal_minor,
		    shipping_minor = EXCLUDED.shipping_minor,
		    discount_minor = EXCLUDED.discount_minor,
		    total_minor = EXCLUDED.total_minor,
		    currency = EXCLUDED.currency,
		    metadata = orders.metadata || EXCLUDED.metadata,
		    updated_at = NOW()
		WHERE orders.payment_status IN ('pending', 'failed')
		RETURNING id, created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		order.OrderNumber,
		string(order.PaymentMethod),
		string(order.Status),
		customerJSON,
		itemsJSON,
		order.SubtotalMinor,
		order.ShippingMinor,
		order.DiscountMinor,
		order.TotalMinor,
		order.Currency,
		metadataJSON,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: order %s is no longer pending", ErrInvalidStatusTransition, order.OrderNumber)
	}
	if err != nil {
		return err
	}
	order.PaymentStatus = models.PaymentPending
	return nil
}

func (s *OrderStore) GetByOrderNumber(ctx context.Context, orderNumber string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	return s.scanOne(s.pool.QueryRow(ctx, query, orderNumber))
}

// GetByMetadataValue finds the most recent order whose metadata key holds value.
func (s *OrderStore) GetByMetadataValue(ctx context.Context, key, value string) (*Order, error) {
	if strings.TrimSpace(value) == "" {
		return nil, ErrOrderNotFound
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE metadata->>$1 = $2 ORDER BY created_at DESC LIMIT 1`
	return s.scanOne(s.pool.QueryRow(ctx, query, key, value))
}

func (s *OrderStore) MergeMetadata(ctx context.Context, orderNumber string, metadata map[string]any) error {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	query := `UPDATE orders SET metadata = metadata || $1::jsonb, updated_at = NOW() WHERE order_number = $2`
	cmdTag, err := s.pool.Exec(ctx, query, metadataJSON, orderNumber)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) MarkPaid(ctx context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error {
	return s.transition(ctx, orderNumber, models.PaymentPaid, models.StatusProcessing,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed, models.PaymentPaid}, metadata, occurredAt)
}

func (s *OrderStore) MarkFailed(ctx context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error {
	return s.transition(ctx, orderNumber, models.PaymentFailed, models.StatusCancelled,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed}, metadata, occurredAt)
}

func (s *OrderStore) MarkRefunded(ctx context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error {
	return s.transition(ctx, orderNumber, models.PaymentRefunded, models.StatusRefunded,
		[]models.PaymentStatus{models.PaymentPaid, models.PaymentRefunded}, metadata, occurredAt)
}

// transition moves payment_status to `to` when the current value is in `from`
// and the event is not older than the last applied one. Re-applying the
// current status only merges metadata.
func (s *OrderStore) transition(ctx context.Context, orderNumber string, to models.PaymentStatus, status models.OrderStatus, from []models.PaymentStatus, metadata map[string]any, occurredAt time.Time) error {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	fromValues := make([]string, len(from))
	for i, value := range from {
		fromValues[i] = string(value)
	}

	query := `
		UPDATE orders
		SET status = CASE WHEN payment_status = $1 THEN status ELSE $2 END,
		    payment_status = $1,
		    metadata = metadata || $3::jsonb,
		    last_event_at = GREATEST(COALESCE(last_event_at, $4), $4),
		    updated_at = NOW()
		WHERE order_number = $5
		  AND payment_status = ANY($6)
		  AND (last_event_at IS NULL OR last_event_at <= $4)
	`
	cmdTag, err := s.pool.Exec(ctx, query, string(to), string(status), metadataJSON, occurredAt.UTC(), orderNumber, fromValues)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected %s and no newer event", ErrInvalidStatusTransition, strings.Join(fromValues, "/"))
	}
	return nil
}

func (s *OrderStore) scanOne(row pgx.Row) (*Order, error) {
	var (
		order         Order
		paymentMethod string
		paymentStatus string
		status        string
		customerJSON  []byte
		itemsJSON     []byte
		metadataJSON  []byte
		lastEventAt   pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&paymentMethod,
		&paymentStatus,
		&status,
		&customerJSON,
		&itemsJSON,
		&order.SubtotalMinor,
		&order.ShippingMinor,
		&order.DiscountMinor,
		&order.TotalMinor,
		&order.Currency,
		&metadataJSON,
		&lastEventAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.Status = models.OrderStatus(status)
	if lastEventAt.Valid {
		order.LastEventAt = lastEventAt.Time
	}
	if err := json.Unmarshal(customerJSON, &order.Customer); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	order.Metadata = map[string]any{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &order.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &order, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return json.Marshal(metadata)
}
