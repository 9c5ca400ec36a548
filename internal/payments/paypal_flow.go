package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/db"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/money"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/payments/paypal"
	"github.com/ceylongems/storefront/internal/reconcile"
)

type PayPalCreateInput struct {
	Amount         string
	OrderReference string
	AttemptID      string
}

type PayPalOrder struct {
	ID        string
	AttemptID string
}

// CreatePayPalOrder creates the PayPal order for the draft's current total.
// Amount is in the store currency and must equal the draft total.
func (s *Service) CreatePayPalOrder(ctx context.Context, input PayPalCreateInput) (result *PayPalOrder, err error) {
	span, ctx := startSpan(ctx, "paypal_create", "CreatePayPalOrder")
	defer func() { finishSpan(span, err) }()

	logger := s.loggerFromContext(ctx).With("order_reference", input.OrderReference, "payment_method", checkout.MethodPayPal)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment.method", string(checkout.MethodPayPal)))

	draft, err := s.drafts.Get(ctx, input.OrderReference)
	if err != nil {
		return nil, err
	}
	if err := checkAmount("amount", input.Amount, draft.Totals.Total); err != nil {
		return nil, err
	}
	if err := s.ensurePayable(ctx, draft.OrderReference); err != nil {
		return nil, err
	}
	attempt, err := s.attemptFor(ctx, draft, checkout.MethodPayPal, input.AttemptID)
	if err != nil {
		return nil, err
	}

	providerAmount, err := s.settings.ToPayPalAmount(draft.Totals.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to convert amount for paypal: %w", err)
	}

	providerOrderID, err := s.paypal.CreateOrder(ctx, paypal.CreateOrderRequest{
		OrderReference: draft.OrderReference,
		Amount:         money.Format(providerAmount),
		Currency:       s.settings.PayPalCurrency,
		Description:    s.settings.StoreName + " order " + draft.OrderReference,
		RequestID:      attempt.ID,
	})
	if err != nil {
		logger.Error("paypal order creation failed", "error", err, "attempt_id", attempt.ID)
		countFailure(ctx, checkout.MethodPayPal, "create_order")
		return nil, fmt.Errorf("%w: %w", ErrInitiation, err)
	}

	attempt.ProviderRef = providerOrderID
	if err := s.drafts.Save(ctx, draft, s.settings.DraftTTL); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	if _, err := s.persistPending(ctx, draft, checkout.MethodPayPal, map[string]any{
		models.MetaPayPalOrderID: providerOrderID,
		models.MetaAttemptID:     attempt.ID,
		"paypal_amount":          money.Format(providerAmount),
		"paypal_currency":        s.settings.PayPalCurrency,
	}); err != nil {
		return nil, err
	}

	meter.Count("payment.initiated", 1)
	logger.Info("paypal order created", "paypal_order_id", providerOrderID, "attempt_id", attempt.ID)
	return &PayPalOrder{ID: providerOrderID, AttemptID: attempt.ID}, nil
}

type PayPalCaptureInput struct {
	ProviderOrderID string
	OrderReference  string
}

type CaptureResult struct {
	Success       bool
	TransactionID string
}

// CapturePayPalOrder captures an approved PayPal order and reconciles the
// persisted order synchronously. Captures for a PayPal order that is no
// longer the order's active one are refused.
func (s *Service) CapturePayPalOrder(ctx context.Context, input PayPalCaptureInput) (result *CaptureResult, err error) {
	span, ctx := startSpan(ctx, "paypal_capture", "CapturePayPalOrder")
	defer func() { finishSpan(span, err) }()

	logger := s.loggerFromContext(ctx).With(
		"order_reference", input.OrderReference,
		"payment_method", checkout.MethodPayPal,
		"paypal_order_id", input.ProviderOrderID,
	)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment.method", string(checkout.MethodPayPal)))

	order, err := s.orders.GetByOrderNumber(ctx, input.OrderReference)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.PaymentMethod != checkout.MethodPayPal || order.MetadataString(models.MetaPayPalOrderID) != input.ProviderOrderID {
		logger.Info("refusing capture for superseded paypal order",
			"active_paypal_order_id", order.MetadataString(models.MetaPayPalOrderID))
		return nil, ErrStaleAttempt
	}
	if order.PaymentStatus == models.PaymentPaid {
		return &CaptureResult{Success: true, TransactionID: order.MetadataString(models.MetaPayPalCaptureID)}, nil
	}
	if order.PaymentStatus == models.PaymentRefunded {
		return nil, ErrAlreadyPaid
	}

	attemptID := order.MetadataString(models.MetaAttemptID)
	draft, err := s.drafts.Get(ctx, input.OrderReference)
	if err == nil {
		active := draft.ActiveAttempt(checkout.MethodPayPal)
		if active == nil || active.ProviderRef != input.ProviderOrderID {
			logger.Info("refusing capture for inactive attempt")
			return nil, ErrStaleAttempt
		}
		attemptID = active.ID
	}

	capture, err := s.paypal.CaptureOrder(ctx, input.ProviderOrderID)
	if err != nil {
		logger.Error("paypal capture failed", "error", err)
		countFailure(ctx, checkout.MethodPayPal, "capture")
		return nil, fmt.Errorf("%w: %w", ErrConfirmation, err)
	}
	if capture.Capture.Status != "COMPLETED" {
		logger.Warn("paypal capture not completed", "capture_id", capture.Capture.ID, "capture_status", capture.Capture.Status)
		countFailure(ctx, checkout.MethodPayPal, "capture_"+capture.Capture.Status)
		return nil, fmt.Errorf("%w: capture status %s", ErrConfirmation, capture.Capture.Status)
	}

	capturedAt := capture.Capture.CreatedAt()
	if capturedAt.IsZero() {
		capturedAt = s.now()
	}
	outcome := s.apply(ctx, logger, reconcile.Confirmation{
		Provider:    "paypal",
		Source:      reconcile.SourceCapture,
		EventID:     "capture:" + capture.Capture.ID,
		Kind:        reconcile.KindCompleted,
		OrderNumber: input.OrderReference,
		CaptureKey:  models.MetaPayPalCaptureID,
		CaptureID:   capture.Capture.ID,
		OccurredAt:  capturedAt,
		Metadata: map[string]any{
			models.MetaPayPalOrderID:          input.ProviderOrderID,
			models.MetaPayPalCaptureID:        capture.Capture.ID,
			models.MetaPayPalCapturedAmount:   capture.Capture.Amount.Value,
			models.MetaPayPalCapturedCurrency: capture.Capture.Amount.CurrencyCode,
			models.MetaPayPalCapturedAt:       capturedAt.UTC().Format(time.RFC3339),
		},
	})

	s.finishDraft(ctx, logger, input.OrderReference, attemptID)
	meter.Count("payment.captured", 1, sentry.WithAttributes(attribute.String("reconcile.outcome", string(outcome))))
	logger.Info("paypal payment captured", "capture_id", capture.Capture.ID, "outcome", outcome)
	return &CaptureResult{Success: true, TransactionID: capture.Capture.ID}, nil
}
