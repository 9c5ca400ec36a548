package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const postmarkBaseURL = "https://api.postmarkapp.com"

type PostmarkProvider struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	TextBody      string `json:"TextBody,omitempty"`
	HtmlBody      string `json:"HtmlBody,omitempty"`
	MessageStream string `json:"MessageStream"`
}

func NewPostmarkProvider(apiKey, from, baseURL string) *PostmarkProvider {
	if baseURL == "" {
		baseURL = postmarkBaseURL
	}
	return &PostmarkProvider{
		apiKey:     apiKey,
		from:       from,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

func (p *PostmarkProvider) SendEmail(ctx context.Context, email *Email) error {
	if err := email.check(); err != nil {
		return err
	}

	payload, err := json.Marshal(postmarkEmail{
		From:          p.from,
		To:            email.To,
		Subject:       email.Subject,
		TextBody:      email.Text,
		HtmlBody:      email.HTML,
		MessageStream: "outbound",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	body, err := readBody(resp, "postmark")
	if err != nil {
		return err
	}

	var result postmarkResponse
	decodeErr := json.Unmarshal(body, &result)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && result.ErrorCode != 0 {
			return fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
		}
		return fmt.Errorf("postmark API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to parse postmark response: %w", decodeErr)
	}
	if result.ErrorCode != 0 {
		return fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
	}
	return nil
}

func (p *PostmarkProvider) ValidateAPIKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/server", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	if _, err := readBody(resp, "postmark"); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("invalid API key: received status %d", resp.StatusCode)
	}
	return nil
}
