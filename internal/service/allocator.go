package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shinyyama/dm-api/internal/metrics"
	"github.com/shinyyama/dm-api/internal/repository"
)

const maxAllocatorBackoff = 200 * time.Millisecond

// Allocator hands out message ids from the counter record. Each id is
// reserved by a conditional increment on the store, so the counter is never
// read-modify-written and never cached here.
type Allocator struct {
	repo       repository.MessageRepository
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewAllocator(repo repository.MessageRepository, maxRetries int, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		repo:       repo,
		maxRetries: maxRetries,
		backoff:    10 * time.Millisecond,
		logger:     logger,
	}
}

// Next reserves the next id. It returns the id and the counter's timestamp,
// which together with id "0" addresses the counter record.
func (a *Allocator) Next(ctx context.Context) (string, string, error) {
	backoff := a.backoff

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		counter, err := a.repo.GetCounter(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", "", fmt.Errorf("id counter record is missing: %w", err)
			}
			return "", "", fmt.Errorf("read id counter: %w", err)
		}

		next, err := a.repo.IncrementCounter(ctx, counter)
		if err == nil {
			return strconv.FormatUint(next.RecordCount, 10), next.Timestamp, nil
		}
		if !errors.Is(err, repository.ErrCounterConflict) {
			return "", "", fmt.Errorf("increment id counter: %w", err)
		}

		metrics.AllocatorRetries.Inc()
		a.logger.DebugContext(ctx, "id counter contended, retrying",
			slog.Int("attempt", attempt+1),
			slog.Uint64("seen", counter.RecordCount))

		if attempt == a.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxAllocatorBackoff)
	}

	return "", "", fmt.Errorf("%w: id counter still contended after %d retries", ErrConflict, a.maxRetries)
}
