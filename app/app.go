package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/ceylongems/storefront/internal/cache"
	"github.com/ceylongems/storefront/internal/checkout"
	"github.com/ceylongems/storefront/internal/config"
	"github.com/ceylongems/storefront/internal/crypto"
	"github.com/ceylongems/storefront/internal/db"
	"github.com/ceylongems/storefront/internal/drafts"
	"github.com/ceylongems/storefront/internal/email"
	"github.com/ceylongems/storefront/internal/handlers"
	"github.com/ceylongems/storefront/internal/logging"
	"github.com/ceylongems/storefront/internal/observability"
	"github.com/ceylongems/storefront/internal/payments"
	"github.com/ceylongems/storefront/internal/payments/card"
	"github.com/ceylongems/storefront/internal/payments/paypal"
	"github.com/ceylongems/storefront/internal/payments/payzy"
	"github.com/ceylongems/storefront/internal/reconcile"
	"github.com/ceylongems/storefront/internal/storeconfig"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	DraftStore    drafts.Store
	Metrics       *observability.Metrics
	Handlers      *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := observability.InitSentry(observability.SentryOptions{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		Release:          cfg.SentryRelease,
		TracesSampleRate: cfg.SentryTracesSampleRate,
	})
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg, os.Stdout, sentryEnabled)
	a := &App{Config: cfg, Logger: logger, sentryEnabled: sentryEnabled}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if err := a.init(startupCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	database, err := db.Connect(ctx, cfg.DatabaseURL, db.WithMaxConns(cfg.DatabaseMaxConns))
	if err != nil {
		return err
	}
	a.DB = database

	if cfg.MigrateOnStart {
		if err := migrateUp(database, logger); err != nil {
			return err
		}
	}

	settings, err := storeconfig.Load(cfg.StoreConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load store settings: %w", err)
	}

	a.CacheProvider, err = cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	var sealer crypto.Sealer
	if cfg.DraftEncryptionKey != "" {
		sealer, err = crypto.NewSealer(cfg.DraftEncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to initialize draft sealer: %w", err)
		}
	}
	a.DraftStore, err = drafts.NewStore(ctx, drafts.Config{
		Provider:              cfg.DraftStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
		Sealer:                sealer,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize draft store: %w", err)
	}

	a.Metrics = observability.NewMetrics()

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
		Domain:   cfg.MailgunDomain,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize email provider: %w", err)
	}
	if emailProvider == nil {
		logger.Warn("email provider not configured; order emails are disabled")
	}
	mailer, err := email.NewOrderMailer(emailProvider, settings.StoreName)
	if err != nil {
		return fmt.Errorf("failed to initialize order mailer: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	webhookEvents := db.NewWebhookEventStore(database)
	reconciler := reconcile.New(orderStore, mailer, a.Metrics, logger.With("component", "reconciler"))

	deps := payments.Dependencies{
		Drafts:       a.DraftStore,
		Orders:       orderStore,
		Reconciler:   reconciler,
		Settings:     settings,
		Availability: cfg.Availability(),
		Mailer:       mailer,
		BaseURL:      cfg.BaseURL,
		Logger:       logger.With("component", "payments"),
	}
	handlerDeps := handlers.Dependencies{
		Config:        cfg,
		DB:            database,
		CacheProvider: a.CacheProvider,
		WebhookAudit:  webhookEvents,
		WebhookRouter: handlers.NewWebhookEventRouter(reconciler, logger.With("component", "webhook_router")),
		Metrics:       a.Metrics,
		Logger:        logger,
	}

	if cfg.DraftTokenSecret != "" {
		tokens, err := checkout.NewDraftTokenIssuer([]byte(cfg.DraftTokenSecret))
		if err != nil {
			return fmt.Errorf("failed to initialize draft token issuer: %w", err)
		}
		deps.DraftTokens = tokens
	} else {
		logger.Warn("DRAFT_TOKEN_SECRET not set, draft tokens will not survive a restart")
	}

	if cfg.PayPalEnabled() {
		client, err := paypal.NewClient(paypal.Config{
			BaseURL:      cfg.PayPalBaseURL(),
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			WebhookID:    cfg.PayPalWebhookID,
			Metrics:      a.Metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize paypal client: %w", err)
		}
		deps.PayPal = client
		handlerDeps.PayPal = client
	}

	if cfg.PayzyEnabled() {
		client, err := payzy.NewClient(payzy.Config{
			BaseURL:    cfg.PayzyBaseURL,
			MerchantID: cfg.PayzyMerchantID,
			Secret:     cfg.PayzySecret,
			Metrics:    a.Metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize payzy client: %w", err)
		}
		deps.Payzy = client
		handlerDeps.Payzy = client
	}

	if cfg.CardPaymentsEnabled {
		processor, err := card.NewStripeProcessor(card.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Metrics:   a.Metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize card processor: %w", err)
		}
		tokens, err := card.NewTokenIssuer(cfg.CardClientTokenSecret)
		if err != nil {
			return fmt.Errorf("failed to initialize card token issuer: %w", err)
		}
		deps.Card = processor
		deps.CardTokens = tokens
		deps.CardPublishableKey = cfg.StripePublishableKey
	}

	service, err := payments.NewService(deps)
	if err != nil {
		return fmt.Errorf("failed to initialize payments service: %w", err)
	}
	handlerDeps.Payments = service

	a.Handlers, err = handlers.New(handlerDeps)
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info("storefront initialized",
		"store", settings.StoreName,
		"currency", settings.Currency,
		"paypal", cfg.PayPalEnabled(),
		"payzy", cfg.PayzyEnabled(),
		"card", cfg.CardPaymentsEnabled,
	)
	return nil
}

func migrateUp(pool *pgxpool.Pool, logger *slog.Logger) error {
	migrator, err := db.NewMigrator(pool)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("failed to close migrator", "error", err)
		}
	}()

	applied, err := migrator.Up()
	if err != nil {
		return err
	}
	if applied {
		logger.Info("database migrations applied")
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.DraftStore != nil {
		if err := a.DraftStore.Close(); err != nil {
			a.Logger.Warn("failed to close draft store", "error", err)
		}
	}
	if a.CacheProvider != nil {
		if err := a.CacheProvider.Close(); err != nil {
			a.Logger.Warn("failed to close cache provider", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		observability.FlushSentry(2 * time.Second)
	}
}

func newLogger(cfg *config.Config, w io.Writer, sentryEnabled bool) *slog.Logger {
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		base = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel, ReplaceAttr: logging.ReplaceAttr})
	default:
		base = tint.NewHandler(w, &tint.Options{Level: cfg.LogLevel, ReplaceAttr: logging.ReplaceAttr})
	}

	if !sentryEnabled {
		return slog.New(base)
	}
	return slog.New(logging.MultiHandler(base, observability.SentryLogHandler(context.Background())))
}
