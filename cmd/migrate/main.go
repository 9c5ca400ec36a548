// Command migrate applies or rolls back the storefront schema.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ceylongems/storefront/internal/db"
)

const usage = "usage: migrate up|down|version"

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	if err := run(os.Args[1], databaseURL, logger); err != nil {
		logger.Error("migration failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(command, databaseURL string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, databaseURL, db.WithMaxConns(2))
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := db.NewMigrator(pool)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("failed to close migrator", "error", err)
		}
	}()

	switch command {
	case "up":
		applied, err := migrator.Up()
		if err != nil {
			return err
		}
		logger.Info("migrate up", "changed", applied)
	case "down":
		reverted, err := migrator.Down()
		if err != nil {
			return err
		}
		logger.Info("migrate down", "changed", reverted)
	case "version":
		version, dirty, ok, err := migrator.Version()
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("no migrations applied")
			return nil
		}
		logger.Info("schema version", "version", version, "dirty", dirty)
	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}
	return nil
}
