// Package email sends customer emails through a pluggable provider.
package email

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ceylongems/storefront/internal/observability"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
	Domain   string // Mailgun only
	BaseURL  string
}

// NewProvider returns nil, nil when no provider is configured.
func NewProvider(config Config) (Provider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, nil
	}
	if strings.TrimSpace(config.From) == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when an email provider is configured")
	}

	switch config.Provider {
	case "", "resend":
		return NewResendProvider(config.APIKey, config.From, config.BaseURL)
	case "postmark":
		return NewPostmarkProvider(config.APIKey, config.From, config.BaseURL), nil
	case "mailgun":
		if config.Domain == "" {
			return nil, fmt.Errorf("MAILGUN_DOMAIN is required for the mailgun provider")
		}
		return NewMailgunProvider(config.APIKey, config.Domain, config.From, config.BaseURL), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be either 'resend', 'postmark', or 'mailgun'")
	}
}

func newHTTPClient() *http.Client {
	return observability.NewHTTPClient(30 * time.Second)
}

// readBody drains and closes resp.Body.
func readBody(resp *http.Response, provider string) ([]byte, error) {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close %s response body: %w", provider, closeErr)
	}
	return body, nil
}
