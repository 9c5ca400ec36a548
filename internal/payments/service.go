// Package payments orchestrates checkout drafts, provider adapters and order
// reconciliation for each payment method.
package payments

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/db"
	"github.com/ceylongems/storefront/internal/drafts"
	"github.com/ceylongems/storefront/internal/logging"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/money"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/payments/card"
	"github.com/ceylongems/storefront/internal/payments/paypal"
	"github.com/ceylongems/storefront/internal/payments/payzy"
	"github.com/ceylongems/storefront/internal/reconcile"
	"github.com/ceylongems/storefront/internal/storeconfig"
)

var (
	ErrMethodUnavailable = checkout.ErrMethodUnavailable
	ErrStaleAttempt      = checkout.ErrStaleAttempt
	ErrAlreadyPaid       = errors.New("order is already paid")
	ErrAmountMismatch    = errors.New("amount does not match the order total")
	// ErrInitiation means the provider refused to start a payment. No order
	// was persisted.
	ErrInitiation = errors.New("payment could not be started")
	// ErrConfirmation means the provider did not confirm the payment. Any
	// persisted order stays pending.
	ErrConfirmation = errors.New("payment could not be confirmed")
)

type OrderStore interface {
	UpsertPending(ctx context.Context, order *models.Order) error
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	MergeMetadata(ctx context.Context, orderNumber string, metadata map[string]any) error
}

type Reconciler interface {
	Apply(ctx context.Context, c reconcile.Confirmation) (reconcile.Outcome, error)
}

type PayPalGateway interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (string, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*paypal.CaptureResult, error)
}

type PayzyGateway interface {
	InitPayment(ctx context.Context, req payzy.InitRequest) (*payzy.InitResult, error)
	VerifyReturn(query url.Values) (*payzy.Return, error)
}

type BankTransferMailer interface {
	SendBankTransferInstructions(ctx context.Context, order *models.Order, bank storeconfig.BankDetails) error
}

type Dependencies struct {
	Drafts       drafts.Store
	Orders       OrderStore
	Reconciler   Reconciler
	Settings     *storeconfig.Settings
	Availability checkout.Availability
	DraftTokens  *checkout.DraftTokenIssuer
	PayPal       PayPalGateway
	Payzy        PayzyGateway
	CardTokens   *card.TokenIssuer
	Card         card.Processor
	// CardPublishableKey is handed to the hosted fields with each client token.
	CardPublishableKey string
	Mailer             BankTransferMailer
	BaseURL            string
	Logger             *slog.Logger
}

type Service struct {
	drafts             drafts.Store
	orders             OrderStore
	reconciler         Reconciler
	settings           *storeconfig.Settings
	strategy           *checkout.Strategy
	draftTokens        *checkout.DraftTokenIssuer
	paypal             PayPalGateway
	payzy              PayzyGateway
	cardTokens         *card.TokenIssuer
	card               card.Processor
	cardPublishableKey string
	mailer             BankTransferMailer
	baseURL            string
	logger             *slog.Logger
	now                func() time.Time
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Drafts == nil {
		return nil, fmt.Errorf("payments dependencies: draft store is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("payments dependencies: order store is required")
	}
	if deps.Reconciler == nil {
		return nil, fmt.Errorf("payments dependencies: reconciler is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("payments dependencies: store settings are required")
	}
	if deps.Availability.PayPal && deps.PayPal == nil {
		return nil, fmt.Errorf("payments dependencies: paypal gateway is required when paypal is enabled")
	}
	if deps.Availability.Payzy && deps.Payzy == nil {
		return nil, fmt.Errorf("payments dependencies: payzy gateway is required when payzy is enabled")
	}
	if deps.Availability.Card && (deps.Card == nil || deps.CardTokens == nil) {
		return nil, fmt.Errorf("payments dependencies: card processor and token issuer are required when card payments are enabled")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// Without a configured secret, draft tokens do not survive a restart.
	draftTokens := deps.DraftTokens
	if draftTokens == nil {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate draft token secret: %w", err)
		}
		var err error
		if draftTokens, err = checkout.NewDraftTokenIssuer(secret); err != nil {
			return nil, err
		}
	}

	return &Service{
		drafts:             deps.Drafts,
		orders:             deps.Orders,
		reconciler:         deps.Reconciler,
		settings:           deps.Settings,
		strategy:           checkout.NewStrategy(deps.Availability),
		draftTokens:        draftTokens,
		paypal:             deps.PayPal,
		payzy:              deps.Payzy,
		cardTokens:         deps.CardTokens,
		card:               deps.Card,
		cardPublishableKey: deps.CardPublishableKey,
		mailer:             deps.Mailer,
		baseURL:            strings.TrimRight(deps.BaseURL, "/"),
		logger:             logger,
		now:                time.Now,
	}, nil
}

func (s *Service) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *Service) Availability() checkout.Availability {
	return s.strategy.Availability()
}

func startSpan(ctx context.Context, name, description string) (*sentry.Span, context.Context) {
	span := sentry.StartSpan(
		ctx,
		"service.payments."+name,
		sentry.WithOpName("service.payments"),
		sentry.WithDescription(description),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	return span, span.Context()
}

func finishSpan(span *sentry.Span, err error) {
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Finish()
}

func countFailure(ctx context.Context, method checkout.Method, reason string) {
	observability.CountFailure(ctx, "payment.failed", reason, attribute.String("payment.method", string(method)))
}

// SaveDraft creates the draft for input.OrderReference, or merges input into
// the existing one.
func (s *Service) SaveDraft(ctx context.Context, input checkout.DraftInput) (*checkout.Draft, error) {
	reference := strings.TrimSpace(input.OrderReference)
	if reference != "" && !checkout.IsOrderReference(reference) {
		return nil, &checkout.ValidationError{Field: "orderReference", Message: "is not a valid order reference"}
	}
	input.OrderReference = reference

	now := s.now()
	next := checkout.NewDraft(input, s.settings.Shipping, s.settings.Currency, now)

	draft := next
	if reference != "" {
		existing, err := s.drafts.Get(ctx, reference)
		switch {
		case err == nil:
			if existing.Status == checkout.DraftCompleted {
				return nil, checkout.ErrDraftCompleted
			}
			existing.Merge(next, now)
			draft = existing
		case errors.Is(err, drafts.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to load draft: %w", err)
		}
	}

	if err := s.drafts.Save(ctx, draft, s.settings.DraftTTL); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return draft, nil
}

// IssueDraftToken returns the token a client presents to read or change the
// draft for reference.
func (s *Service) IssueDraftToken(reference string) (string, error) {
	return s.draftTokens.Issue(reference)
}

// AuthorizeDraft returns checkout.ErrDraftAccess when reference already has a
// draft or order and token was not issued for it. Unused references are open
// so a client can start a checkout under a reference it picked.
func (s *Service) AuthorizeDraft(ctx context.Context, reference, token string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil
	}
	if err := s.draftTokens.Verify(token, reference); err == nil {
		return nil
	}

	_, err := s.drafts.Get(ctx, reference)
	switch {
	case err == nil:
		return checkout.ErrDraftAccess
	case !errors.Is(err, drafts.ErrNotFound):
		return fmt.Errorf("failed to load draft: %w", err)
	}

	_, err = s.orders.GetByOrderNumber(ctx, reference)
	switch {
	case err == nil:
		return checkout.ErrDraftAccess
	case errors.Is(err, db.ErrOrderNotFound):
		return nil
	default:
		return fmt.Errorf("failed to load order: %w", err)
	}
}

func (s *Service) GetDraft(ctx context.Context, reference string) (*checkout.Draft, error) {
	return s.drafts.Get(ctx, reference)
}

// BeginAttempt starts a new attempt for method, superseding any active one.
func (s *Service) BeginAttempt(ctx context.Context, reference string, method checkout.Method) (*checkout.Attempt, error) {
	draft, err := s.drafts.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.ensurePayable(ctx, reference); err != nil {
		return nil, err
	}
	attempt, err := s.strategy.BeginAttempt(draft, method)
	if err != nil {
		return nil, err
	}
	if err := s.drafts.Save(ctx, draft, s.settings.DraftTTL); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return attempt, nil
}

// attemptFor reuses attemptID when it is the draft's active attempt for
// method, or begins a new attempt when attemptID is empty.
func (s *Service) attemptFor(ctx context.Context, draft *checkout.Draft, method checkout.Method, attemptID string) (*checkout.Attempt, error) {
	if attemptID != "" {
		if err := checkout.CheckAttempt(draft, attemptID); err != nil {
			return nil, err
		}
		if draft.Attempt.Method != method {
			return nil, ErrStaleAttempt
		}
		if !s.strategy.Availability().Enabled(method) {
			return nil, fmt.Errorf("%w: %s", ErrMethodUnavailable, method)
		}
		if err := checkout.Validate(draft); err != nil {
			return nil, err
		}
		return draft.Attempt, nil
	}

	attempt, err := s.strategy.BeginAttempt(draft, method)
	if err != nil {
		return nil, err
	}
	if err := s.drafts.Save(ctx, draft, s.settings.DraftTTL); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return attempt, nil
}

// ensurePayable refuses new attempts for orders that already took money.
func (s *Service) ensurePayable(ctx context.Context, reference string) error {
	order, err := s.orders.GetByOrderNumber(ctx, reference)
	if errors.Is(err, db.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order.PaymentStatus == models.PaymentPaid || order.PaymentStatus == models.PaymentRefunded {
		return ErrAlreadyPaid
	}
	return nil
}

func checkAmount(field, raw string, expected int64) error {
	amount, err := money.Parse(raw)
	if err != nil {
		return &checkout.ValidationError{Field: field, Message: "must be a positive amount with at most two decimals"}
	}
	if amount != expected {
		return fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, money.Format(amount), money.Format(expected))
	}
	return nil
}

// persistPending upserts the pending order for draft. The order number is the
// draft reference, so retries never create a second order.
func (s *Service) persistPending(ctx context.Context, draft *checkout.Draft, method checkout.Method, metadata map[string]any) (*models.Order, error) {
	order := draft.ToOrder(method)
	for k, v := range metadata {
		order.Metadata[k] = v
	}
	if err := s.orders.UpsertPending(ctx, order); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			return nil, ErrAlreadyPaid
		}
		return nil, fmt.Errorf("failed to persist pending order: %w", err)
	}
	return order, nil
}

// finishDraft completes the attempt and clears the draft. A stale attempt
// leaves the draft untouched.
func (s *Service) finishDraft(ctx context.Context, logger *slog.Logger, reference, attemptID string) {
	draft, err := s.drafts.Get(ctx, reference)
	if errors.Is(err, drafts.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Error("failed to load draft after payment", "error", err)
		return
	}
	if err := s.strategy.CompleteAttempt(draft, attemptID); err != nil {
		logger.Info("discarding payment result for inactive attempt", "attempt_id", attemptID, "error", err)
		return
	}
	if err := s.drafts.Delete(ctx, reference); err != nil {
		logger.Error("failed to delete completed draft", "error", err)
	}
}

// apply reconciles a synchronous confirmation. Reconciliation errors are
// logged: the provider has taken the money and its webhook repairs the order.
func (s *Service) apply(ctx context.Context, logger *slog.Logger, c reconcile.Confirmation) reconcile.Outcome {
	outcome, err := s.reconciler.Apply(ctx, c)
	if err != nil {
		logger.Error("failed to reconcile confirmed payment", "error", err, "outcome", outcome)
		return outcome
	}
	if outcome != models.OutcomeApplied && outcome != models.OutcomeNoop {
		logger.Warn("confirmed payment did not update the order", "outcome", outcome)
	}
	return outcome
}

func (s *Service) redirectURL(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}
