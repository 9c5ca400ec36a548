package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const mailgunBaseURL = "https://api.mailgun.net/v3"

type MailgunProvider struct {
	apiKey     string
	from       string
	domain     string
	baseURL    string
	httpClient *http.Client
}

func NewMailgunProvider(apiKey, domain, from, baseURL string) *MailgunProvider {
	if baseURL == "" {
		baseURL = mailgunBaseURL
	}
	return &MailgunProvider{
		apiKey:     apiKey,
		domain:     domain,
		from:       from,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

func (m *MailgunProvider) SendEmail(ctx context.Context, email *Email) error {
	if err := email.check(); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("from", m.from)
	form.Set("to", email.To)
	form.Set("subject", email.Subject)
	if email.Text != "" {
		form.Set("text", email.Text)
	}
	if email.HTML != "" {
		form.Set("html", email.HTML)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/"+m.domain+"/messages", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	body, err := readBody(resp, "mailgun")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("mailgun error: %s", errResp.Message)
		}
		return fmt.Errorf("mailgun API returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *MailgunProvider) ValidateAPIKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/domains/"+m.domain, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	if _, err := readBody(resp, "mailgun"); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("invalid API key: received status %d", resp.StatusCode)
	}
	return nil
}
