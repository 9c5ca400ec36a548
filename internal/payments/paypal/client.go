// Package paypal is a REST client for PayPal Orders v2 and webhook verification.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ceylongems/storefront/internal/observability"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"

	defaultTimeout  = 20 * time.Second
	maxResponseBody = 1 << 20
)

var ErrWebhookVerification = errors.New("paypal webhook signature verification failed")

// APIError is a non-2xx PayPal response. Body is kept for logs only.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	DebugID    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal api error: status=%d name=%s debug_id=%s: %s", e.StatusCode, e.Name, e.DebugID, e.Message)
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	// HTTPClient is the base transport for token and API calls. Defaults to a
	// Sentry-instrumented client.
	HTTPClient *http.Client
	Metrics    *observability.Metrics
}

type Client struct {
	baseURL    string
	webhookID  string
	httpClient *http.Client
	metrics    *observability.Metrics
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("paypal base url is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("paypal client id and secret are required")
	}

	base := cfg.HTTPClient
	if base == nil {
		base = observability.NewHTTPClient(defaultTimeout)
	}

	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := credentials.Client(tokenCtx)
	httpClient.Timeout = defaultTimeout

	return &Client{
		baseURL:    baseURL,
		webhookID:  cfg.WebhookID,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
	}, nil
}

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type CreateOrderRequest struct {
	OrderReference string
	Amount         string
	Currency       string
	Description    string
	// RequestID makes retries within one attempt idempotent at PayPal.
	RequestID string
}

type createOrderBody struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      Money  `json:"amount"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []Capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder creates a CAPTURE-intent order and returns PayPal's order id.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	body := createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.OrderReference,
			CustomID:    req.OrderReference,
			InvoiceID:   req.OrderReference,
			Description: req.Description,
			Amount: Money{
				CurrencyCode: req.Currency,
				Value:        req.Amount,
			},
		}},
	}

	var resp orderResponse
	if err := c.do(ctx, "create_order", http.MethodPost, "/v2/checkout/orders", req.RequestID, body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("paypal create order: response missing id")
	}
	return resp.ID, nil
}

// Capture is a PayPal payment capture.
type Capture struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     Money  `json:"amount"`
	CustomID   string `json:"custom_id"`
	InvoiceID  string `json:"invoice_id"`
	CreateTime string `json:"create_time"`
}

func (c Capture) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339, c.CreateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

type CaptureResult struct {
	OrderID     string
	OrderStatus string
	Capture     Capture
}

// CaptureOrder captures an approved order. The capture is keyed on the order
// id so a retried call returns the original capture.
func (c *Client) CaptureOrder(ctx context.Context, providerOrderID string) (*CaptureResult, error) {
	if strings.TrimSpace(providerOrderID) == "" {
		return nil, fmt.Errorf("paypal order id is required")
	}

	var resp orderResponse
	path := "/v2/checkout/orders/" + providerOrderID + "/capture"
	if err := c.do(ctx, "capture_order", http.MethodPost, path, "capture-"+providerOrderID, struct{}{}, &resp); err != nil {
		return nil, err
	}

	result := &CaptureResult{OrderID: resp.ID, OrderStatus: resp.Status}
	for _, unit := range resp.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			result.Capture = unit.Payments.Captures[0]
			if result.Capture.CustomID == "" {
				result.Capture.CustomID = unit.ReferenceID
			}
			break
		}
	}
	if result.Capture.ID == "" {
		return nil, fmt.Errorf("paypal capture order: response missing capture")
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, operation, method, path, requestID string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveProviderCall("paypal", operation, err, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("paypal %s: failed to encode request: %w", operation, marshalErr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("paypal %s: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s: request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("paypal %s: failed to read response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		var decoded struct {
			Name    string `json:"name"`
			Message string `json:"message"`
			DebugID string `json:"debug_id"`
		}
		if json.Unmarshal(respBody, &decoded) == nil {
			apiErr.Name = decoded.Name
			apiErr.Message = decoded.Message
			apiErr.DebugID = decoded.DebugID
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("paypal %s: failed to decode response: %w", operation, err)
	}
	return nil
}
