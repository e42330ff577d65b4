package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shinyyama/dm-api/internal/config"
	"github.com/shinyyama/dm-api/internal/logging"
	"github.com/shinyyama/dm-api/internal/seed"
	"github.com/shinyyama/dm-api/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", slog.Any("err", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Error("seed failed", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("store seeded", slog.String("driver", cfg.StoreDriver))
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// The DynamoDB table may not exist yet; Reset creates it.
	repo, err := store.Open(ctx, cfg, cfg.StoreDriver != config.DriverDynamoDB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	return seed.Run(ctx, repo, time.Now())
}
