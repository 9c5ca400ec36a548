package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/logging"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/reconcile"
)

type Reconciler interface {
	Apply(ctx context.Context, c reconcile.Confirmation) (reconcile.Outcome, error)
}

// webhookDelivery is a verified, parsed provider event. Handled is false for
// event types the storefront does not act on.
type webhookDelivery struct {
	Provider     string
	EventID      string
	EventType    string
	OrderNumber  string
	Handled      bool
	Confirmation reconcile.Confirmation
}

// WebhookEventRouter hands verified provider events to the reconciler.
type WebhookEventRouter struct {
	reconciler Reconciler
	logger     *slog.Logger
}

func NewWebhookEventRouter(reconciler Reconciler, logger *slog.Logger) *WebhookEventRouter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebhookEventRouter{
		reconciler: reconciler,
		logger:     logger,
	}
}

func (r *WebhookEventRouter) Handle(ctx context.Context, delivery *webhookDelivery) (models.WebhookOutcome, error) {
	span := sentry.StartSpan(
		ctx,
		"handler.webhook_router.handle",
		sentry.WithOpName("handler.webhook_router"),
		sentry.WithDescription("WebhookEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		observability.CountFailure(ctx, "webhook.router.failed", reason)
		span.Status = sentry.SpanStatusInternalError
	}

	if delivery == nil {
		recordFailed("missing_event")
		return models.OutcomeFailed, fmt.Errorf("missing webhook event")
	}
	meter.SetAttributes(
		attribute.String("webhook.provider", delivery.Provider),
		attribute.String("webhook.event_type", delivery.EventType),
	)
	logger := logging.FromContext(ctx, r.logger).With(
		"provider", delivery.Provider,
		"event_id", delivery.EventID,
		"event_type", delivery.EventType,
	)

	if !delivery.Handled {
		logger.Info("unhandled webhook event type")
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return models.OutcomeIgnored, nil
	}
	if r.reconciler == nil {
		recordFailed("reconciler_not_configured")
		return models.OutcomeFailed, fmt.Errorf("webhook reconciler not configured")
	}

	outcome, err := r.reconciler.Apply(ctx, delivery.Confirmation)
	if err != nil {
		recordFailed(string(delivery.Confirmation.Kind) + "_failed")
		return models.OutcomeFailed, err
	}
	meter.Count("webhook.router.processed", 1, sentry.WithAttributes(attribute.String("reconcile.outcome", string(outcome))))
	span.Status = sentry.SpanStatusOK
	return outcome, nil
}
