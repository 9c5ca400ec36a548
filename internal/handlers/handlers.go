package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/ceylongems/storefront/internal/cache"
	"github.com/ceylongems/storefront/internal/config"
	"github.com/ceylongems/storefront/internal/logging"
	"github.com/ceylongems/storefront/internal/models"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/payments"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

const maxRequestBodyBytes = 64 << 10

type Pinger interface {
	Ping(ctx context.Context) error
}

// WebhookAudit is the append-only log of verified provider events.
type WebhookAudit interface {
	Record(ctx context.Context, event *models.WebhookEvent) (processed bool, err error)
	MarkProcessed(ctx context.Context, id uuid.UUID, outcome models.WebhookOutcome) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type PayPalWebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, header http.Header, body []byte) error
}

type PayzyWebhookVerifier interface {
	VerifyWebhook(header http.Header, body []byte) error
}

// Handlers serves the storefront checkout API and provider webhooks.
type Handlers struct {
	config        *config.Config
	db            Pinger
	payments      *payments.Service
	cacheProvider cache.Provider
	audit         WebhookAudit
	webhookRouter *WebhookEventRouter
	paypal        PayPalWebhookVerifier
	payzy         PayzyWebhookVerifier
	metrics       *observability.Metrics
	logger        *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	DB            Pinger
	Payments      *payments.Service
	CacheProvider cache.Provider
	WebhookAudit  WebhookAudit
	WebhookRouter *WebhookEventRouter
	// PayPal and Payzy are nil when the method is not configured; their
	// webhook endpoints then reject every delivery.
	PayPal  PayPalWebhookVerifier
	Payzy   PayzyWebhookVerifier
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("handlers dependencies: payments is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.WebhookAudit == nil {
		return nil, fmt.Errorf("handlers dependencies: webhookAudit is required")
	}
	if deps.WebhookRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: webhookRouter is required")
	}

	return &Handlers{
		config:        deps.Config,
		db:            deps.DB,
		payments:      deps.Payments,
		cacheProvider: deps.CacheProvider,
		audit:         deps.WebhookAudit,
		webhookRouter: deps.WebhookRouter,
		paypal:        deps.PayPal,
		payzy:         deps.Payzy,
		metrics:       deps.Metrics,
		logger:        logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// NotFound keeps unknown API paths on the JSON error contract.
func (h *Handlers) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are ignored
// so older clients keep working.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func redirectPath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.IsAbs() || parsed.Host != "" {
		return "/"
	}
	return parsed.String()
}
