package worker

import (
	"context"
	"sync"
	"time"

	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

// Purger deletes expired idempotency records; *idempotency.Store implements it.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyPurgeWorker removes finished idempotency keys once their replay window has passed.
type IdempotencyPurgeWorker struct {
	store        Purger
	pollInterval time.Duration
	now          func() time.Time
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewIdempotencyPurgeWorker(store Purger) *IdempotencyPurgeWorker {
	return &IdempotencyPurgeWorker{
		store:        store,
		pollInterval: 10 * time.Minute,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *IdempotencyPurgeWorker) WithPollInterval(interval time.Duration) *IdempotencyPurgeWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// Start runs until Stop is called or the context is canceled.
func (w *IdempotencyPurgeWorker) Start(ctx context.Context) {
	zap.L().Info("idempotency purge worker starting", zap.Duration("interval", w.pollInterval))
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

func (w *IdempotencyPurgeWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *IdempotencyPurgeWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce purges a single time. Useful for testing or manual triggering.
func (w *IdempotencyPurgeWorker) ProcessOnce(ctx context.Context) {
	n, err := w.store.Purge(ctx, w.now())
	if err != nil {
		observability.IncrementWorkerRun("idempotency_purge", "failed")
		zap.L().Warn("idempotency purge failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("idempotency_purge", "success")
	if n > 0 {
		zap.L().Info("purged idempotency keys", zap.Int64("count", n))
	}
}
