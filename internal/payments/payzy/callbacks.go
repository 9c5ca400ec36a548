package payzy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/reconcile"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"

	// returnMaxAge bounds how old a signed return URL may be.
	returnMaxAge = time.Hour
)

// Return is the verified query string of the customer's redirect back from Payzy.
type Return struct {
	OrderReference string
	Status         string
	TransactionID  string
	Timestamp      time.Time
}

func (r Return) Succeeded() bool {
	return r.Status == StatusSuccess
}

func returnMessage(ref, status, transactionID, timestamp string) []byte {
	return []byte(strings.Join([]string{ref, status, transactionID, timestamp}, "|"))
}

// SignReturn produces the signature Payzy appends to the return URL.
func (c *Client) SignReturn(ref, status, transactionID string, timestamp time.Time) string {
	return c.sign(returnMessage(ref, status, transactionID, strconv.FormatInt(timestamp.Unix(), 10)))
}

// VerifyReturn checks the signature and age of the return URL parameters.
func (c *Client) VerifyReturn(query url.Values) (*Return, error) {
	ref := query.Get("order_reference")
	status := query.Get("status")
	transactionID := query.Get("transaction_id")
	rawTimestamp := query.Get("timestamp")
	signature := query.Get("signature")

	if ref == "" || status == "" || rawTimestamp == "" || signature == "" {
		return nil, fmt.Errorf("%w: missing return parameters", ErrInvalidSignature)
	}
	if !c.verify(returnMessage(ref, status, transactionID, rawTimestamp), signature) {
		return nil, ErrInvalidSignature
	}

	seconds, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp", ErrInvalidSignature)
	}
	timestamp := time.Unix(seconds, 0).UTC()
	if age := c.now().Sub(timestamp); age > returnMaxAge || age < -returnMaxAge {
		return nil, fmt.Errorf("%w: return url expired", ErrInvalidSignature)
	}
	if status != StatusSuccess && status != StatusFailed {
		return nil, fmt.Errorf("unknown payzy return status %q", status)
	}

	return &Return{
		OrderReference: ref,
		Status:         status,
		TransactionID:  transactionID,
		Timestamp:      timestamp,
	}, nil
}

// Confirmation maps a verified return onto a reconciliation input.
func (r Return) Confirmation() reconcile.Confirmation {
	c := reconcile.Confirmation{
		Provider:    "payzy",
		Source:      reconcile.SourceReturn,
		EventID:     "return:" + r.OrderReference + ":" + r.TransactionID,
		Kind:        reconcile.KindDenied,
		OrderNumber: r.OrderReference,
		CaptureKey:  models.MetaPayzyTransactionID,
		CaptureID:   r.TransactionID,
		OccurredAt:  r.Timestamp,
		Metadata:    map[string]any{},
	}
	if r.TransactionID != "" {
		c.Metadata[models.MetaPayzyTransactionID] = r.TransactionID
	}
	if r.Succeeded() {
		c.Kind = reconcile.KindCompleted
	}
	return c
}

// VerifyWebhook checks the X-Payzy-Signature header against the raw body.
func (c *Client) VerifyWebhook(header http.Header, body []byte) error {
	signature := header.Get(SignatureHeader)
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}
	if !c.verify(body, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// SignWebhook returns the header value Payzy sends for body.
func (c *Client) SignWebhook(body []byte) string {
	return signaturePrefix + c.sign(body)
}

type EventData struct {
	OrderReference string `json:"order_reference"`
	TransactionID  string `json:"transaction_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	RefundID       string `json:"refund_id,omitempty"`
}

type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      EventData `json:"data"`
}

func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode payzy event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("payzy event missing id or type")
	}
	return &event, nil
}

func (e *Event) Confirmation() (c reconcile.Confirmation, ok bool) {
	c = reconcile.Confirmation{
		Provider:    "payzy",
		Source:      reconcile.SourceWebhook,
		EventID:     e.ID,
		OrderNumber: e.Data.OrderReference,
		CaptureKey:  models.MetaPayzyTransactionID,
		CaptureID:   e.Data.TransactionID,
		OccurredAt:  e.CreatedAt,
		Metadata:    map[string]any{},
	}
	if e.Data.TransactionID != "" {
		c.Metadata[models.MetaPayzyTransactionID] = e.Data.TransactionID
	}

	switch e.Type {
	case EventPaymentSuccess:
		c.Kind = reconcile.KindCompleted
	case EventPaymentFailed:
		c.Kind = reconcile.KindDenied
	case EventPaymentRefunded:
		c.Kind = reconcile.KindRefunded
		if e.Data.RefundID != "" {
			c.Metadata[models.MetaRefundID] = e.Data.RefundID
		}
	default:
		return reconcile.Confirmation{}, false
	}
	return c, true
}
