// Package payzy integrates the Payzy buy-now-pay-later hosted checkout.
package payzy

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/money"
	"github.com/ceylongems/storefront/internal/observability"
)

const (
	SignatureHeader = "X-Payzy-Signature"
	signaturePrefix = "sha256="

	defaultTimeout  = 20 * time.Second
	maxResponseBody = 1 << 20
)

var ErrInvalidSignature = errors.New("payzy signature is invalid")

type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payzy api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

type Config struct {
	BaseURL    string
	MerchantID string
	Secret     string
	HTTPClient *http.Client
	Metrics    *observability.Metrics
}

type Client struct {
	baseURL    string
	merchantID string
	secret     []byte
	httpClient *http.Client
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" || cfg.MerchantID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("payzy base url, merchant id and secret are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		var host string
		if parsed, err := url.Parse(baseURL); err == nil {
			host = parsed.Hostname()
		}
		httpClient = observability.NewHTTPClient(defaultTimeout, host)
	}
	return &Client{
		baseURL:    baseURL,
		merchantID: cfg.MerchantID,
		secret:     []byte(cfg.Secret),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}, nil
}

type InitRequest struct {
	OrderReference string
	Customer       models.Customer
	Items          []models.LineItem
	TotalMinor     int64
	Currency       string
	ReturnURL      string
	AttemptID      string
}

type InitResult struct {
	PaymentURL    string
	TransactionID string
}

type initCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
}

type initItem struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type initPayload struct {
	MerchantID     string       `json:"merchant_id"`
	OrderReference string       `json:"order_reference"`
	Amount         string       `json:"amount"`
	Currency       string       `json:"currency"`
	Customer       initCustomer `json:"customer"`
	Items          []initItem   `json:"items"`
	ReturnURL      string       `json:"return_url"`
	Nonce          string       `json:"nonce,omitempty"`
}

type initResponse struct {
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

func buildInitPayload(merchantID string, req InitRequest) initPayload {
	address := req.Customer.AddressLine1
	if req.Customer.AddressLine2 != "" {
		address += ", " + req.Customer.AddressLine2
	}
	items := make([]initItem, 0, len(req.Items))
	for _, item := range req.Items {
		name := item.Name
		if item.Size != "" {
			name += " (" + item.Size + ")"
		}
		items = append(items, initItem{
			SKU:       item.ProductID,
			Name:      name,
			UnitPrice: money.Format(item.UnitPrice),
			Quantity:  item.Quantity,
		})
	}
	return initPayload{
		MerchantID:     merchantID,
		OrderReference: req.OrderReference,
		Amount:         money.Format(req.TotalMinor),
		Currency:       req.Currency,
		Customer: initCustomer{
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
			Address:   address,
			City:      req.Customer.City,
			Postcode:  req.Customer.PostalCode,
			Country:   req.Customer.Country,
		},
		Items:     items,
		ReturnURL: req.ReturnURL,
		Nonce:     req.AttemptID,
	}
}

// InitPayment creates a hosted Payzy checkout and returns the URL the
// customer is redirected to.
func (c *Client) InitPayment(ctx context.Context, req InitRequest) (result *InitResult, err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveProviderCall("payzy", "init_payment", err, time.Since(start))
	}()

	payload, err := json.Marshal(buildInitPayload(c.merchantID, req))
	if err != nil {
		return nil, fmt.Errorf("payzy init: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/payments/init", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("payzy init: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Payzy-Merchant", c.merchantID)
	httpReq.Header.Set(SignatureHeader, signaturePrefix+c.sign(payload))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payzy init: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("payzy init: failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		var decoded struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &decoded) == nil {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Message
		}
		return nil, apiErr
	}

	var decoded initResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("payzy init: failed to decode response: %w", err)
	}
	if decoded.PaymentURL == "" {
		return nil, fmt.Errorf("payzy init: response missing payment url")
	}
	return &InitResult{PaymentURL: decoded.PaymentURL, TransactionID: decoded.TransactionID}, nil
}

func (c *Client) sign(message []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) verify(message []byte, signature string) bool {
	expected, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix))
	if err != nil || len(expected) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), expected)
}
