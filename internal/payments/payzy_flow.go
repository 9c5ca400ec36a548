package payments

import (
	"context"
	"fmt"
	"net/url"

	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/payments/payzy"
)

// CheckoutInput is the body shared by the redirect and bank-transfer
// endpoints: the full draft plus the total the customer saw.
type CheckoutInput struct {
	Draft checkout.DraftInput
	Total string
}

type RedirectResult struct {
	URL string
}

// InitPayzy saves the draft, starts a Payzy attempt and returns the hosted
// payment URL. Confirmation arrives later through the return URL or webhook.
func (s *Service) InitPayzy(ctx context.Context, input CheckoutInput) (result *RedirectResult, err error) {
	span, ctx := startSpan(ctx, "payzy_init", "InitPayzy")
	defer func() { finishSpan(span, err) }()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment.method", string(checkout.MethodPayzy)))

	draft, err := s.SaveDraft(ctx, input.Draft)
	if err != nil {
		return nil, err
	}
	logger := s.loggerFromContext(ctx).With("order_reference", draft.OrderReference, "payment_method", checkout.MethodPayzy)

	if err := checkAmount("total", input.Total, draft.Totals.Total); err != nil {
		return nil, err
	}
	if err := s.ensurePayable(ctx, draft.OrderReference); err != nil {
		return nil, err
	}
	attempt, err := s.attemptFor(ctx, draft, checkout.MethodPayzy, "")
	if err != nil {
		return nil, err
	}

	started, err := s.payzy.InitPayment(ctx, payzy.InitRequest{
		OrderReference: draft.OrderReference,
		Customer:       draft.Customer,
		Items:          draft.Items,
		TotalMinor:     draft.Totals.Total,
		Currency:       draft.Currency,
		ReturnURL:      s.baseURL + "/checkout/payzy/return",
		AttemptID:      attempt.ID,
	})
	if err != nil {
		logger.Error("payzy payment initiation failed", "error", err, "attempt_id", attempt.ID)
		countFailure(ctx, checkout.MethodPayzy, "init")
		return nil, fmt.Errorf("%w: %w", ErrInitiation, err)
	}

	attempt.ProviderRef = started.TransactionID
	if err := s.drafts.Save(ctx, draft, s.settings.DraftTTL); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	metadata := map[string]any{models.MetaAttemptID: attempt.ID}
	if started.TransactionID != "" {
		metadata[models.MetaPayzyTransactionID] = started.TransactionID
	}
	if _, err := s.persistPending(ctx, draft, checkout.MethodPayzy, metadata); err != nil {
		return nil, err
	}

	meter.Count("payment.initiated", 1)
	logger.Info("payzy payment initiated", "attempt_id", attempt.ID, "transaction_id", started.TransactionID)
	return &RedirectResult{URL: started.PaymentURL}, nil
}

// HandlePayzyReturn verifies the customer's redirect back from Payzy,
// reconciles the order and returns the page to send the customer to.
func (s *Service) HandlePayzyReturn(ctx context.Context, query url.Values) string {
	logger := s.loggerFromContext(ctx).With("payment_method", checkout.MethodPayzy)
	failure := func(reference string) string {
		if reference == "" {
			return s.settings.FailurePath
		}
		return s.redirectURL(s.settings.FailurePath, url.Values{"order": {reference}, "payment_method": {string(checkout.MethodPayzy)}})
	}

	if s.payzy == nil {
		return failure("")
	}
	ret, err := s.payzy.VerifyReturn(query)
	if err != nil {
		logger.Warn("rejected payzy return", "error", err, "security_event", true)
		return failure("")
	}
	logger = logger.With("order_reference", ret.OrderReference, "transaction_id", ret.TransactionID)

	outcome := s.apply(ctx, logger, ret.Confirmation())
	if !ret.Succeeded() {
		logger.Info("payzy payment not completed", "outcome", outcome)
		return failure(ret.OrderReference)
	}
	if outcome != models.OutcomeApplied && outcome != models.OutcomeNoop {
		return failure(ret.OrderReference)
	}

	if draft, err := s.drafts.Get(ctx, ret.OrderReference); err == nil {
		if active := draft.ActiveAttempt(checkout.MethodPayzy); active != nil &&
			(active.ProviderRef == "" || active.ProviderRef == ret.TransactionID) {
			s.finishDraft(ctx, logger, ret.OrderReference, active.ID)
		} else {
			logger.Info("payzy return does not match the active attempt; draft kept")
		}
	}
	return s.redirectURL(s.settings.SuccessPath, url.Values{"order": {ret.OrderReference}, "payment_method": {string(checkout.MethodPayzy)}})
}
