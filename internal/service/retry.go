package service

import (
	"context"
	"errors"
	"time"

	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

const DefaultMaxRetries = 3

// withRetry reruns fn while it reports a persistence conflict, up to attempts times.
// fn must re-read everything it validates; ids fixed by the caller stay fixed.
func withRetry(ctx context.Context, operation string, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrPersistenceConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		observability.IncrementLedgerRetry(operation)
		zap.L().Debug("retrying after persistence conflict",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
		}
	}
	return err
}
