package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/money"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/payments/card"
	"github.com/ceylongems/storefront/internal/reconcile"
)

type CardClientToken struct {
	ClientToken    string
	PublishableKey string
	AttemptID      string
	ExpiresAt      time.Time
}

// IssueCardClientToken starts a card attempt and returns the token the
// hosted fields need to tokenize the card.
func (s *Service) IssueCardClientToken(ctx context.Context, reference string) (*CardClientToken, error) {
	if !s.strategy.Availability().Card {
		return nil, fmt.Errorf("%w: %s", ErrMethodUnavailable, checkout.MethodCard)
	}
	attempt, err := s.BeginAttempt(ctx, reference, checkout.MethodCard)
	if err != nil {
		return nil, err
	}
	draft, err := s.drafts.Get(ctx, reference)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.cardTokens.Issue(reference, draft.Totals.Total, draft.Currency, attempt.ID)
	if err != nil {
		return nil, err
	}
	return &CardClientToken{
		ClientToken:    token,
		PublishableKey: s.cardPublishableKey,
		AttemptID:      attempt.ID,
		ExpiresAt:      expiresAt,
	}, nil
}

type CardChargeInput struct {
	Token          string
	ClientToken    string
	Amount         string
	OrderReference string
}

// ChargeCard charges a hosted-fields token. No automatic retry: a decline
// leaves the order pending and the customer may submit again.
func (s *Service) ChargeCard(ctx context.Context, input CardChargeInput) (result *CaptureResult, err error) {
	span, ctx := startSpan(ctx, "card_charge", "ChargeCard")
	defer func() { finishSpan(span, err) }()

	logger := s.loggerFromContext(ctx).With("order_reference", input.OrderReference, "payment_method", checkout.MethodCard)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment.method", string(checkout.MethodCard)))

	if !s.strategy.Availability().Card {
		return nil, fmt.Errorf("%w: %s", ErrMethodUnavailable, checkout.MethodCard)
	}
	if strings.TrimSpace(input.Token) == "" {
		return nil, card.ErrTokenization
	}
	amount, err := money.Parse(input.Amount)
	if err != nil {
		return nil, &checkout.ValidationError{Field: "amount", Message: "must be a positive amount with at most two decimals"}
	}
	claims, err := s.cardTokens.Verify(input.ClientToken, input.OrderReference, amount)
	if err != nil {
		logger.Warn("rejected card client token", "error", err)
		return nil, err
	}

	draft, err := s.drafts.Get(ctx, input.OrderReference)
	if err != nil {
		return nil, err
	}
	if err := checkout.CheckAttempt(draft, claims.AttemptID); err != nil {
		return nil, err
	}
	if draft.Attempt.Method != checkout.MethodCard {
		return nil, ErrStaleAttempt
	}
	if err := checkout.Validate(draft); err != nil {
		return nil, err
	}
	if amount != draft.Totals.Total {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, money.Format(amount), money.Format(draft.Totals.Total))
	}

	order, err := s.persistPending(ctx, draft, checkout.MethodCard, map[string]any{
		models.MetaAttemptID: claims.AttemptID,
	})
	if err != nil {
		return nil, err
	}

	charge, err := s.card.Charge(ctx, card.ChargeRequest{
		PaymentToken:   input.Token,
		AmountMinor:    draft.Totals.Total,
		Currency:       draft.Currency,
		OrderReference: draft.OrderReference,
		AttemptID:      claims.AttemptID,
		ReceiptEmail:   order.Customer.Email,
	})
	if err != nil {
		var declineErr *card.DeclineError
		if errors.As(err, &declineErr) {
			logger.Info("card payment declined", "code", declineErr.Code, "decline_code", declineErr.DeclineCode)
			countFailure(ctx, checkout.MethodCard, "declined")
		} else {
			logger.Error("card charge failed", "error", err)
			countFailure(ctx, checkout.MethodCard, "charge")
		}
		return nil, fmt.Errorf("%w: %w", ErrConfirmation, err)
	}

	// Stamp the confirmation with the processor's time so the matching
	// webhook replays as a no-op.
	occurredAt := charge.CreatedAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	outcome := s.apply(ctx, logger, reconcile.Confirmation{
		Provider:    "stripe",
		Source:      reconcile.SourceCapture,
		EventID:     "charge:" + charge.TransactionID,
		Kind:        reconcile.KindCompleted,
		OrderNumber: draft.OrderReference,
		CaptureKey:  models.MetaCardPaymentIntentID,
		CaptureID:   charge.TransactionID,
		OccurredAt:  occurredAt,
		Metadata: map[string]any{
			models.MetaCardPaymentIntentID: charge.TransactionID,
		},
	})

	s.finishDraft(ctx, logger, draft.OrderReference, claims.AttemptID)
	meter.Count("payment.captured", 1)
	logger.Info("card payment charged", "payment_intent_id", charge.TransactionID, "outcome", outcome)
	return &CaptureResult{Success: true, TransactionID: charge.TransactionID}, nil
}
