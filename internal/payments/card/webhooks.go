package card

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/reconcile"
)

const SignatureHeader = "Stripe-Signature"

// ConstructEvent verifies the Stripe-Signature header over payload.
func ConstructEvent(payload []byte, signature, secret string) (*stripe.Event, error) {
	if signature == "" {
		return nil, fmt.Errorf("missing stripe signature header")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature validation failed: %w", err)
	}
	return &event, nil
}

// EventConfirmation maps PaymentIntent, refund and dispute events onto a
// reconciliation input. ok is false for event types that are not acted on.
func EventConfirmation(event *stripe.Event) (c reconcile.Confirmation, ok bool, err error) {
	if event == nil || event.Data == nil {
		return reconcile.Confirmation{}, false, fmt.Errorf("missing stripe event data")
	}

	c = reconcile.Confirmation{
		Provider:   "stripe",
		Source:     reconcile.SourceWebhook,
		EventID:    event.ID,
		CaptureKey: models.MetaCardPaymentIntentID,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
		Metadata:   map[string]any{},
	}

	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return reconcile.Confirmation{}, false, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		c.OrderNumber = intent.Metadata["order_reference"]
		c.CaptureID = intent.ID
		c.Metadata[models.MetaCardPaymentIntentID] = intent.ID
		c.Kind = reconcile.KindCompleted
		if event.Type == "payment_intent.payment_failed" {
			c.Kind = reconcile.KindDenied
		}
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return reconcile.Confirmation{}, false, fmt.Errorf("failed to decode charge: %w", err)
		}
		if !charge.Refunded {
			// Partial refunds leave the order paid.
			return reconcile.Confirmation{}, false, nil
		}
		c.Kind = reconcile.KindRefunded
		c.OrderNumber = charge.Metadata["order_reference"]
		if charge.PaymentIntent != nil {
			c.CaptureID = charge.PaymentIntent.ID
		}
		c.Metadata[models.MetaRefundID] = charge.ID
	case "charge.dispute.created":
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return reconcile.Confirmation{}, false, fmt.Errorf("failed to decode dispute: %w", err)
		}
		c.Kind = reconcile.KindReversed
		if dispute.PaymentIntent != nil {
			c.CaptureID = dispute.PaymentIntent.ID
		}
	default:
		return reconcile.Confirmation{}, false, nil
	}
	return c, true, nil
}
