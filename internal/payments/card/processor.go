package card

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/ceylongems/storefront/internal/observability"
)

var (
	ErrTokenization = errors.New("card could not be tokenized")
	ErrDeclined     = errors.New("card payment declined")
)

// DeclineError carries the processor's reason for logs. Callers show a
// generic message.
type DeclineError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("card declined: code=%s decline_code=%s: %s", e.Code, e.DeclineCode, e.Message)
}

func (e *DeclineError) Unwrap() error {
	return ErrDeclined
}

type ChargeRequest struct {
	PaymentToken   string
	AmountMinor    int64
	Currency       string
	OrderReference string
	AttemptID      string
	ReceiptEmail   string
}

type ChargeResult struct {
	TransactionID string
	Status        string
	// CreatedAt is the processor's timestamp for the charge, in whole seconds.
	CreatedAt time.Time
}

type Processor interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type StripeConfig struct {
	SecretKey string
	// BaseURL overrides the Stripe API host; used by tests.
	BaseURL    string
	HTTPClient *http.Client
	Metrics    *observability.Metrics
}

// StripeProcessor charges hosted-field payment methods with PaymentIntents.
type StripeProcessor struct {
	client  *stripe.Client
	metrics *observability.Metrics
}

func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(30 * time.Second)
	}
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendConfig.URL = stripe.String(cfg.BaseURL)
	}

	return &StripeProcessor{
		client:  stripe.NewClient(cfg.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig))),
		metrics: cfg.Metrics,
	}, nil
}

// Charge creates and confirms a PaymentIntent in one call. The idempotency
// key is bound to the attempt, so a resubmitted form cannot charge twice.
func (p *StripeProcessor) Charge(ctx context.Context, req ChargeRequest) (result *ChargeResult, err error) {
	if strings.TrimSpace(req.PaymentToken) == "" {
		return nil, ErrTokenization
	}

	start := time.Now()
	defer func() {
		p.metrics.ObserveProviderCall("stripe", "charge", err, time.Since(start))
	}()

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.PaymentToken),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String("Order " + req.OrderReference),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: map[string]string{
			"order_reference": req.OrderReference,
			"attempt_id":      req.AttemptID,
		},
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	params.SetIdempotencyKey("charge-" + req.OrderReference + "-" + req.AttemptID)

	intent, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &DeclineError{Code: "unexpected_status", Message: string(intent.Status)}
	}
	return &ChargeResult{
		TransactionID: intent.ID,
		Status:        string(intent.Status),
		CreatedAt:     time.Unix(intent.Created, 0).UTC(),
	}, nil
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe charge failed: %w", err)
	}
	if stripeErr.Type == stripe.ErrorTypeCard {
		return &DeclineError{
			Code:        string(stripeErr.Code),
			DeclineCode: string(stripeErr.DeclineCode),
			Message:     stripeErr.Msg,
		}
	}
	return fmt.Errorf("stripe charge failed: status=%d type=%s: %w", stripeErr.HTTPStatusCode, stripeErr.Type, err)
}
