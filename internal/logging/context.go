// Package logging carries request-scoped slog loggers and the handlers the
// storefront composes its output from.
package logging

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger stores logger in ctx. A nil logger stores a discarding one.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, orDiscard(logger))
}

// FromContext returns the logger in ctx, then fallback, then a discarding logger.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return orDiscard(fallback)
}

// With adds args to the context logger and stores the result, so callees
// log with the same order and event identifiers.
func With(ctx context.Context, fallback *slog.Logger, args ...any) (context.Context, *slog.Logger) {
	logger := FromContext(ctx, fallback).With(args...)
	return WithLogger(ctx, logger), logger
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
