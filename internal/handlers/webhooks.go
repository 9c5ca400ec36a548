package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/ceylongems/storefront/internal/cache"
	"github.com/ceylongems/storefront/internal/logging"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/payments/card"
	"github.com/ceylongems/storefront/internal/payments/paypal"
	"github.com/ceylongems/storefront/internal/payments/payzy"
)

// webhookIdempotencyTTL is how long processed event ids stay in the cache.
// The audit table is the durable record.
const webhookIdempotencyTTL = 24 * time.Hour

const unparsedEventType = "unparsed"

type webhookSource struct {
	provider string
	verify   func(ctx context.Context, header http.Header, body []byte) error
	parse    func(body []byte) (*webhookDelivery, error)
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (h *Handlers) PayPalWebhook(w http.ResponseWriter, r *http.Request) {
	h.serveWebhook(w, r, webhookSource{
		provider: "paypal",
		verify: func(ctx context.Context, header http.Header, body []byte) error {
			if h.paypal == nil {
				return fmt.Errorf("paypal is not configured")
			}
			return h.paypal.VerifyWebhookSignature(ctx, header, body)
		},
		parse: func(body []byte) (*webhookDelivery, error) {
			event, err := paypal.ParseEvent(body)
			if err != nil {
				return nil, err
			}
			confirmation, ok := event.Confirmation()
			return &webhookDelivery{
				Provider:     "paypal",
				EventID:      event.ID,
				EventType:    event.EventType,
				OrderNumber:  event.OrderReference(),
				Handled:      ok,
				Confirmation: confirmation,
			}, nil
		},
	})
}

func (h *Handlers) PayzyWebhook(w http.ResponseWriter, r *http.Request) {
	h.serveWebhook(w, r, webhookSource{
		provider: "payzy",
		verify: func(_ context.Context, header http.Header, body []byte) error {
			if h.payzy == nil {
				return fmt.Errorf("payzy is not configured")
			}
			return h.payzy.VerifyWebhook(header, body)
		},
		parse: func(body []byte) (*webhookDelivery, error) {
			event, err := payzy.ParseEvent(body)
			if err != nil {
				return nil, err
			}
			confirmation, ok := event.Confirmation()
			return &webhookDelivery{
				Provider:     "payzy",
				EventID:      event.ID,
				EventType:    event.Type,
				OrderNumber:  event.Data.OrderReference,
				Handled:      ok,
				Confirmation: confirmation,
			}, nil
		},
	})
}

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.serveWebhook(w, r, webhookSource{
		provider: "stripe",
		verify: func(_ context.Context, header http.Header, body []byte) error {
			if h.config.StripeWebhookSecret == "" {
				return fmt.Errorf("stripe webhook secret is not configured")
			}
			_, err := card.ConstructEvent(body, header.Get(card.SignatureHeader), h.config.StripeWebhookSecret)
			return err
		},
		parse: func(body []byte) (*webhookDelivery, error) {
			var event stripe.Event
			if err := json.Unmarshal(body, &event); err != nil {
				return nil, fmt.Errorf("failed to decode stripe event: %w", err)
			}
			if event.ID == "" {
				return nil, fmt.Errorf("stripe event missing id")
			}
			confirmation, ok, err := card.EventConfirmation(&event)
			if err != nil {
				return nil, err
			}
			return &webhookDelivery{
				Provider:     "stripe",
				EventID:      event.ID,
				EventType:    string(event.Type),
				OrderNumber:  confirmation.OrderNumber,
				Handled:      ok,
				Confirmation: confirmation,
			}, nil
		},
	})
}

// serveWebhook verifies, audits, dedupes and routes one delivery. Every
// verified delivery is acknowledged with 200; failures stay unprocessed in
// the audit log.
func (h *Handlers) serveWebhook(w http.ResponseWriter, r *http.Request, source webhookSource) {
	ctx, logger := logging.With(r.Context(), h.logger, "provider", source.provider)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if err := source.verify(ctx, r.Header, body); err != nil {
		logger.Warn("webhook signature verification failed", "error", err, "security_event", true)
		h.metrics.ObserveWebhook(source.provider, "rejected")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	result := h.processWebhook(ctx, source, body)
	h.metrics.ObserveWebhook(source.provider, result)
	writeJSON(w, http.StatusOK, webhookAck{Received: true})
}

func (h *Handlers) processWebhook(ctx context.Context, source webhookSource, body []byte) string {
	logger := h.loggerFromContext(ctx)

	event := &models.WebhookEvent{Provider: source.provider, Payload: body}
	delivery, parseErr := source.parse(body)
	if parseErr != nil {
		event.EventID = unparsedEventID(body)
		event.EventType = unparsedEventType
	} else {
		event.EventID = delivery.EventID
		event.EventType = delivery.EventType
		event.OrderNumber = delivery.OrderNumber
	}
	ctx, logger = logging.With(ctx, logger, "event_id", event.EventID, "event_type", event.EventType)

	// The verified body is audited before anything else looks at it.
	audited := true
	processed, err := h.audit.Record(ctx, event)
	if err != nil {
		// Reconciliation is idempotent, so the event is still applied.
		logger.Error("failed to record webhook event", "error", err)
		audited = false
	}

	if parseErr != nil {
		logger.Error("failed to parse verified webhook", "error", parseErr)
		if audited {
			if err := h.audit.MarkFailed(ctx, event.ID, parseErr.Error()); err != nil {
				logger.Error("failed to mark webhook event failed", "error", err)
			}
		}
		return "invalid"
	}

	cacheKey := cache.WebhookKey(source.provider, delivery.EventID)
	if processed {
		logger.Info("webhook already processed", "outcome", event.Outcome)
		h.markCached(ctx, cacheKey)
		return "duplicate"
	}
	if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		logger.Info("webhook already processed")
		return "duplicate"
	}

	outcome, processErr := h.webhookRouter.Handle(ctx, delivery)
	if processErr != nil {
		logger.Error("failed to process webhook", "error", processErr)
		if audited {
			if err := h.audit.MarkFailed(ctx, event.ID, processErr.Error()); err != nil {
				logger.Error("failed to mark webhook event failed", "error", err)
			}
		}
		return "failed"
	}

	if audited {
		if err := h.audit.MarkProcessed(ctx, event.ID, outcome); err != nil {
			logger.Error("failed to mark webhook event processed", "error", err)
		}
	}
	h.markCached(ctx, cacheKey)
	logger.Info("webhook processed", "outcome", outcome)
	return string(outcome)
}

// unparsedEventID keys a verified delivery that could not be decoded, so
// redeliveries of the same body land on one audit row.
func unparsedEventID(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (h *Handlers) markCached(ctx context.Context, key string) {
	if err := h.cacheProvider.Set(ctx, key, "processed", webhookIdempotencyTTL); err != nil {
		h.loggerFromContext(ctx).Error("failed to mark webhook as processed in cache", "error", err)
	}
}
