package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	resend "github.com/resend/resend-go/v3"
)

type ResendProvider struct {
	from   string
	client *resend.Client
}

// NewResendProvider builds a Resend client. baseURL overrides the API host.
func NewResendProvider(apiKey, from, baseURL string) (*ResendProvider, error) {
	client := resend.NewCustomClient(newHTTPClient(), apiKey)
	if baseURL != "" {
		parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = parsed
	}
	return &ResendProvider{from: from, client: client}, nil
}

func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) error {
	if err := email.check(); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	return nil
}

func (r *ResendProvider) ValidateAPIKey(ctx context.Context) error {
	if _, err := r.client.ApiKeys.ListWithContext(ctx); err != nil {
		return fmt.Errorf("invalid API key: %w", err)
	}
	return nil
}

func (e *Email) check() error {
	if e == nil {
		return fmt.Errorf("email is required")
	}
	if strings.TrimSpace(e.To) == "" {
		return fmt.Errorf("email recipient is required")
	}
	if e.HTML == "" && e.Text == "" {
		return fmt.Errorf("email body is empty")
	}
	return nil
}
