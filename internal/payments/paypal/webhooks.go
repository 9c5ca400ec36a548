package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Transmission headers PayPal attaches to every webhook delivery.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
)

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal to verify a delivery. It returns
// ErrWebhookVerification unless PayPal answers SUCCESS.
func (c *Client) VerifyWebhookSignature(ctx context.Context, header http.Header, body []byte) error {
	if c.webhookID == "" {
		return fmt.Errorf("%w: webhook id is not configured", ErrWebhookVerification)
	}

	req := verifyRequest{
		AuthAlgo:         header.Get(HeaderAuthAlgo),
		CertURL:          header.Get(HeaderCertURL),
		TransmissionID:   header.Get(HeaderTransmissionID),
		TransmissionSig:  header.Get(HeaderTransmissionSig),
		TransmissionTime: header.Get(HeaderTransmissionTime),
		WebhookID:        c.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	if req.TransmissionID == "" || req.TransmissionSig == "" || req.CertURL == "" || req.AuthAlgo == "" {
		return fmt.Errorf("%w: missing transmission headers", ErrWebhookVerification)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: body is not valid json", ErrWebhookVerification)
	}

	var resp verifyResponse
	if err := c.do(ctx, "verify_webhook", http.MethodPost, "/v1/notifications/verify-webhook-signature", "", req, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrWebhookVerification, err)
	}
	if !strings.EqualFold(resp.VerificationStatus, "SUCCESS") {
		return fmt.Errorf("%w: status %q", ErrWebhookVerification, resp.VerificationStatus)
	}
	return nil
}
