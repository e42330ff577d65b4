package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shinyyama/dm-api/internal/config"
	"github.com/shinyyama/dm-api/internal/logging"
	"github.com/shinyyama/dm-api/internal/server"
	"github.com/shinyyama/dm-api/internal/service"
	"github.com/shinyyama/dm-api/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", slog.Any("err", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, cfg, true)
	if err != nil {
		return err
	}
	logger.Info("record store ready", slog.String("driver", cfg.StoreDriver))

	alloc := service.NewAllocator(repo, cfg.AllocatorMaxRetries, logger)
	svc := service.NewMessageService(repo, alloc, logger)
	srv := server.New(svc, logger, cfg.GitSHA, cfg.Build)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
