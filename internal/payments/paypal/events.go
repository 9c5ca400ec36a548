package paypal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/reconcile"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventCaptureDeclined  = "PAYMENT.CAPTURE.DECLINED"
	EventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
	EventCaptureReversed  = "PAYMENT.CAPTURE.REVERSED"
)

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type Resource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CustomID          string `json:"custom_id"`
	InvoiceID         string `json:"invoice_id"`
	Amount            *Money `json:"amount"`
	Links             []Link `json:"links"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID   string `json:"order_id"`
			CaptureID string `json:"capture_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type Event struct {
	ID           string    `json:"id"`
	EventType    string    `json:"event_type"`
	ResourceType string    `json:"resource_type"`
	CreateTime   time.Time `json:"create_time"`
	Resource     Resource  `json:"resource"`
}

func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode paypal event: %w", err)
	}
	if event.ID == "" || event.EventType == "" {
		return nil, fmt.Errorf("paypal event missing id or event_type")
	}
	return &event, nil
}

// OrderReference is the storefront order number carried on the resource.
func (e *Event) OrderReference() string {
	if e.Resource.CustomID != "" {
		return e.Resource.CustomID
	}
	return e.Resource.InvoiceID
}

// Confirmation maps a capture event onto a reconciliation input. ok is false
// for event types the storefront does not act on.
func (e *Event) Confirmation() (c reconcile.Confirmation, ok bool) {
	c = reconcile.Confirmation{
		Provider:    "paypal",
		Source:      reconcile.SourceWebhook,
		EventID:     e.ID,
		OrderNumber: e.OrderReference(),
		CaptureKey:  models.MetaPayPalCaptureID,
		OccurredAt:  e.CreateTime,
		Metadata:    map[string]any{},
	}

	switch e.EventType {
	case EventCaptureCompleted:
		c.Kind = reconcile.KindCompleted
		c.CaptureID = e.Resource.ID
		c.Metadata[models.MetaPayPalCaptureID] = e.Resource.ID
		if e.Resource.Amount != nil {
			c.Metadata[models.MetaPayPalCapturedAmount] = e.Resource.Amount.Value
			c.Metadata[models.MetaPayPalCapturedCurrency] = e.Resource.Amount.CurrencyCode
		}
		if orderID := e.Resource.SupplementaryData.RelatedIDs.OrderID; orderID != "" {
			c.Metadata[models.MetaPayPalOrderID] = orderID
		}
	case EventCaptureDenied, EventCaptureDeclined:
		c.Kind = reconcile.KindDenied
		c.CaptureID = e.Resource.ID
	case EventCaptureRefunded:
		c.Kind = reconcile.KindRefunded
		c.CaptureID = e.refundedCaptureID()
		c.Metadata[models.MetaRefundID] = e.Resource.ID
	case EventCaptureReversed:
		c.Kind = reconcile.KindReversed
		c.CaptureID = e.Resource.ID
	default:
		return reconcile.Confirmation{}, false
	}
	return c, true
}

// refundedCaptureID finds the capture a refund belongs to, from the related
// ids or the "up" link (".../v2/payments/captures/{id}").
func (e *Event) refundedCaptureID() string {
	if id := e.Resource.SupplementaryData.RelatedIDs.CaptureID; id != "" {
		return id
	}
	for _, link := range e.Resource.Links {
		if link.Rel != "up" {
			continue
		}
		href := strings.TrimRight(link.Href, "/")
		if idx := strings.LastIndex(href, "/captures/"); idx >= 0 {
			return href[idx+len("/captures/"):]
		}
	}
	return ""
}
