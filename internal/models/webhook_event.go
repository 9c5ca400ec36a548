package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookOutcome records what reconciliation did with an inbound event.
type WebhookOutcome string

const (
	OutcomeReceived     WebhookOutcome = "received"
	OutcomeApplied      WebhookOutcome = "applied"
	OutcomeNoop         WebhookOutcome = "noop"
	OutcomeUnmatched    WebhookOutcome = "unmatched"
	OutcomeStale        WebhookOutcome = "stale"
	OutcomeConflict     WebhookOutcome = "conflict"
	OutcomeManualReview WebhookOutcome = "manual_review"
	OutcomeIgnored      WebhookOutcome = "ignored"
	OutcomeFailed       WebhookOutcome = "failed"
)

type WebhookEvent struct {
	ID          uuid.UUID      `json:"id"`
	Provider    string         `json:"provider"`
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	OrderNumber string         `json:"order_number"`
	Payload     []byte         `json:"payload"`
	Outcome     WebhookOutcome `json:"outcome"`
	Error       string         `json:"error"`
	ReceivedAt  time.Time      `json:"received_at"`
	ProcessedAt time.Time      `json:"processed_at"`
}
