package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/payments/paypal"
)

type Config struct {
	DatabaseURL      string `env:"DATABASE_URL,required" validate:"required"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10" validate:"min=1"`
	MigrateOnStart   bool   `env:"MIGRATE_ON_START" envDefault:"false"`
	BaseURL          string `env:"BASE_URL" envDefault:"http://localhost:8080" validate:"required,url"`
	StoreConfigPath  string `env:"STORE_CONFIG_PATH"`

	PayPalEnvironment  string `env:"PAYPAL_ENVIRONMENT" envDefault:"sandbox" validate:"oneof=sandbox live"`
	PayPalClientID     string `env:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `env:"PAYPAL_CLIENT_SECRET"`
	PayPalWebhookID    string `env:"PAYPAL_WEBHOOK_ID"`

	CardPaymentsEnabled   bool   `env:"CARD_PAYMENTS_ENABLED" envDefault:"false"`
	StripeSecretKey       string `env:"STRIPE_SECRET_KEY"`
	StripePublishableKey  string `env:"STRIPE_PUBLISHABLE_KEY"`
	StripeWebhookSecret   string `env:"STRIPE_WEBHOOK_SECRET"`
	CardClientTokenSecret string `env:"CARD_CLIENT_TOKEN_SECRET" validate:"omitempty,min=32"`

	PayzyBaseURL    string `env:"PAYZY_BASE_URL" validate:"omitempty,url"`
	PayzyMerchantID string `env:"PAYZY_MERCHANT_ID"`
	PayzySecret     string `env:"PAYZY_SECRET"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"resend" validate:"omitempty,oneof=resend postmark mailgun"`
	EmailAPIKey   string `env:"EMAIL_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM"`
	MailgunDomain string `env:"MAILGUN_DOMAIN" validate:"required_if=EmailProvider mailgun"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	DraftStoreProvider    string `env:"DRAFT_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=DraftStoreProvider redis"`
	DraftEncryptionKey    string `env:"DRAFT_ENCRYPTION_KEY" validate:"omitempty,len=32"`
	DraftTokenSecret      string `env:"DRAFT_TOKEN_SECRET" validate:"omitempty,min=32"`

	RateLimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30" validate:"min=0"`
	TrustProxyHeaders  bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	// AllowedOrigins are storefront origins besides BASE_URL that may call the checkout API.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," validate:"dive,url"`

	SentryDSN              string  `env:"SENTRY_DSN"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	SentryRelease          string  `env:"SENTRY_RELEASE"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0.1" validate:"gte=0,lte=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if !allOrNone(c.PayPalClientID, c.PayPalClientSecret, c.PayPalWebhookID) {
		return fmt.Errorf("PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET and PAYPAL_WEBHOOK_ID must be set together")
	}
	if !allOrNone(c.PayzyBaseURL, c.PayzyMerchantID, c.PayzySecret) {
		return fmt.Errorf("PAYZY_BASE_URL, PAYZY_MERCHANT_ID and PAYZY_SECRET must be set together")
	}
	if c.CardPaymentsEnabled && !allSet(c.StripeSecretKey, c.StripePublishableKey, c.CardClientTokenSecret) {
		return fmt.Errorf("STRIPE_SECRET_KEY, STRIPE_PUBLISHABLE_KEY and CARD_CLIENT_TOKEN_SECRET are required when CARD_PAYMENTS_ENABLED is true")
	}
	if c.DraftStoreProvider == "redis" && c.DraftEncryptionKey == "" {
		return fmt.Errorf("DRAFT_ENCRYPTION_KEY is required when DRAFT_STORE_PROVIDER is redis")
	}
	// Shared drafts need a shared token secret.
	if c.DraftStoreProvider == "redis" && c.DraftTokenSecret == "" {
		return fmt.Errorf("DRAFT_TOKEN_SECRET is required when DRAFT_STORE_PROVIDER is redis")
	}
	if strings.TrimSpace(c.EmailAPIKey) != "" && strings.TrimSpace(c.EmailFrom) == "" {
		return fmt.Errorf("EMAIL_FROM is required when EMAIL_API_KEY is set")
	}

	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

// PayPalBaseURL maps PAYPAL_ENVIRONMENT to the REST API host.
func (c *Config) PayPalBaseURL() string {
	if c.PayPalEnvironment == "live" {
		return paypal.LiveBaseURL
	}
	return paypal.SandboxBaseURL
}

func (c *Config) PayPalEnabled() bool {
	return strings.TrimSpace(c.PayPalClientID) != ""
}

func (c *Config) PayzyEnabled() bool {
	return strings.TrimSpace(c.PayzyMerchantID) != ""
}

// Availability is the set of payment methods this configuration can serve.
// Bank transfer needs no credentials and is always offered.
func (c *Config) Availability() checkout.Availability {
	return checkout.Availability{
		Card:         c.CardPaymentsEnabled,
		PayPal:       c.PayPalEnabled(),
		Payzy:        c.PayzyEnabled(),
		BankTransfer: true,
	}
}

func allSet(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func allOrNone(values ...string) bool {
	set := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	return set == 0 || set == len(values)
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
