// Command server runs the storefront checkout API and provider webhooks.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ceylongems/storefront/app"
	"github.com/ceylongems/storefront/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	bootLogger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))

	application, err := app.New()
	if err != nil {
		bootLogger.Error("failed to initialize storefront", "error", err)
		return 1
	}
	defer application.Close()
	logger := application.Logger

	srv, err := server.New(application.Config, logger, application.Handlers, application.Metrics)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Close(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return 1
	}
	if err := <-serverErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited with error", "error", err)
		return 1
	}
	return 0
}
