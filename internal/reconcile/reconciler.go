// Package reconcile applies provider payment confirmations to persisted orders.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/db"
	"github.com/ceylongems/storefront/internal/logging"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/observability"
)

type Kind string

const (
	KindCompleted Kind = "completed"
	KindDenied    Kind = "denied"
	KindRefunded  Kind = "refunded"
	KindReversed  Kind = "reversed"
)

type Source string

const (
	SourceWebhook Source = "webhook"
	SourceCapture Source = "capture"
	SourceReturn  Source = "return"
)

type Outcome = models.WebhookOutcome

// Confirmation is a provider-neutral payment result. OrderNumber is the
// primary key for lookup; CaptureKey/CaptureID locate the order through
// stored metadata when the provider omits it.
type Confirmation struct {
	Provider    string
	Source      Source
	EventID     string
	Kind        Kind
	OrderNumber string
	CaptureKey  string
	CaptureID   string
	OccurredAt  time.Time
	Metadata    map[string]any
}

type OrderStore interface {
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetByMetadataValue(ctx context.Context, key, value string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error
	MarkFailed(ctx context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error
	MarkRefunded(ctx context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error
}

// Notifier is told about orders that just became paid.
type Notifier interface {
	OrderPaid(ctx context.Context, order *models.Order) error
}

type Recorder interface {
	ObserveReconcile(provider, kind, outcome string)
}

type Reconciler struct {
	orders   OrderStore
	notifier Notifier
	metrics  Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func New(orders OrderStore, notifier Notifier, metrics Recorder, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		orders:   orders,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Apply moves the order's payment status according to c. It is the only
// writer of payment status. Unknown orders, stale events and conflicting
// events are reported through the outcome, not as errors.
func (r *Reconciler) Apply(ctx context.Context, c Confirmation) (Outcome, error) {
	span := sentry.StartSpan(
		ctx,
		"reconcile.apply",
		sentry.WithOpName("reconcile"),
		sentry.WithDescription("Reconciler.Apply"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()
	span.SetData("payment.provider", c.Provider)
	span.SetData("payment.kind", string(c.Kind))

	outcome, err := r.apply(ctx, c)

	meter := observability.MeterFromContext(ctx)
	meter.Count("reconcile.applied", 1, sentry.WithAttributes(
		attribute.String("payment.provider", c.Provider),
		attribute.String("payment.kind", string(c.Kind)),
		attribute.String("reconcile.outcome", string(outcome)),
	))
	if r.metrics != nil {
		r.metrics.ObserveReconcile(c.Provider, string(c.Kind), string(outcome))
	}

	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return outcome, err
	}
	span.Status = sentry.SpanStatusOK
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, c Confirmation) (Outcome, error) {
	logger := logging.FromContext(ctx, r.logger).With(
		"provider", c.Provider,
		"source", c.Source,
		"event_id", c.EventID,
		"kind", c.Kind,
		"order_number", c.OrderNumber,
	)
	if c.OccurredAt.IsZero() {
		c.OccurredAt = r.now()
	}
	// Provider webhooks carry whole seconds.
	c.OccurredAt = c.OccurredAt.Truncate(time.Second)

	order, err := r.resolve(ctx, c)
	if errors.Is(err, db.ErrOrderNotFound) {
		logger.Warn("no order matches payment confirmation", "capture_id", c.CaptureID)
		return models.OutcomeUnmatched, nil
	}
	if err != nil {
		return models.OutcomeFailed, fmt.Errorf("failed to load order: %w", err)
	}
	logger = logger.With("order_number", order.OrderNumber, "payment_status", order.PaymentStatus)

	if !order.LastEventAt.IsZero() && c.OccurredAt.Before(order.LastEventAt.Truncate(time.Second)) {
		logger.Info("ignoring confirmation older than the last applied event",
			"occurred_at", c.OccurredAt, "last_event_at", order.LastEventAt)
		return models.OutcomeStale, nil
	}

	switch c.Kind {
	case KindReversed:
		logger.Warn("payment reversed by provider; order requires manual review", "capture_id", c.CaptureID)
		return models.OutcomeManualReview, nil

	case KindCompleted:
		if order.PaymentStatus == models.PaymentRefunded {
			logger.Warn("ignoring completion for refunded order")
			return models.OutcomeConflict, nil
		}
		return r.transition(ctx, logger, order, c, models.PaymentPaid, r.orders.MarkPaid)

	case KindDenied:
		if order.PaymentStatus == models.PaymentPaid || order.PaymentStatus == models.PaymentRefunded {
			logger.Warn("ignoring denial for settled order")
			return models.OutcomeConflict, nil
		}
		return r.transition(ctx, logger, order, c, models.PaymentFailed, r.orders.MarkFailed)

	case KindRefunded:
		if order.PaymentStatus != models.PaymentPaid && order.PaymentStatus != models.PaymentRefunded {
			logger.Warn("ignoring refund for unpaid order")
			return models.OutcomeConflict, nil
		}
		return r.transition(ctx, logger, order, c, models.PaymentRefunded, r.orders.MarkRefunded)

	default:
		logger.Info("ignoring unsupported confirmation kind")
		return models.OutcomeIgnored, nil
	}
}

type markFunc func(ctx context.Context, orderNumber string, metadata map[string]any, occurredAt time.Time) error

func (r *Reconciler) transition(ctx context.Context, logger *slog.Logger, order *models.Order, c Confirmation, to models.PaymentStatus, mark markFunc) (Outcome, error) {
	previous := order.PaymentStatus
	if err := mark(ctx, order.OrderNumber, c.Metadata, c.OccurredAt); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("ignoring confirmation due to state transition", "error", err)
			return models.OutcomeConflict, nil
		}
		return models.OutcomeFailed, fmt.Errorf("failed to mark order %s: %w", to, err)
	}

	if previous == to {
		logger.Info("confirmation already applied; metadata merged")
		return models.OutcomeNoop, nil
	}
	logger.Info("order payment status updated", "to", to)

	if to == models.PaymentPaid && r.notifier != nil {
		order.PaymentStatus = to
		if order.Metadata == nil {
			order.Metadata = map[string]any{}
		}
		for k, v := range c.Metadata {
			order.Metadata[k] = v
		}
		if err := r.notifier.OrderPaid(ctx, order); err != nil {
			logger.Error("failed to send payment confirmation email", "error", err)
		}
	}
	return models.OutcomeApplied, nil
}

func (r *Reconciler) resolve(ctx context.Context, c Confirmation) (*models.Order, error) {
	if c.OrderNumber != "" {
		return r.orders.GetByOrderNumber(ctx, c.OrderNumber)
	}
	if c.CaptureKey != "" && c.CaptureID != "" {
		return r.orders.GetByMetadataValue(ctx, c.CaptureKey, c.CaptureID)
	}
	return nil, db.ErrOrderNotFound
}
