package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"

	"github.com/ceylongems/storefront/internal/logging"
)

type SentryOptions struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
}

// InitSentry configures the global Sentry client. It reports false when no DSN is set.
func InitSentry(opts SentryOptions) (bool, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		TracesSampleRate: opts.TracesSampleRate,
		EnableLogs:       true,
		SendDefaultPII:   false,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

// SentryLogHandler forwards errors as Sentry events and warnings as Sentry logs.
func SentryLogHandler(ctx context.Context) slog.Handler {
	return sentryslog.Option{
		EventLevel:  []slog.Level{slog.LevelError},
		LogLevel:    []slog.Level{slog.LevelWarn, slog.LevelInfo},
		ReplaceAttr: logging.ReplaceAttr,
	}.NewSentryHandler(ctx)
}

func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}
