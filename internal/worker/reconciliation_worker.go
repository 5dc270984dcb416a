package worker

import (
	"context"
	"sync"
	"time"

	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

// Reconciler checks ledger conservation; *service.ReconciliationService implements it.
type Reconciler interface {
	Run(ctx context.Context) (*models.LedgerTotals, error)
}

// ReconciliationWorker runs periodic ledger reconciliation checks.
type ReconciliationWorker struct {
	svc      Reconciler
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciliationWorker constructs a worker with a default hourly interval.
func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	// A run never outlives its own interval so a stuck scan cannot stack up behind the ticker.
	runCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	totals, err := w.svc.Run(runCtx)
	if err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
	level := zap.DebugLevel
	if totals.NegativeBalances > 0 || totals.SnapshotViolations > 0 || totals.UnbalancedAccounts > 0 || totals.Drift() != 0 {
		level = zap.WarnLevel
	}
	if ce := zap.L().Check(level, "reconciliation totals"); ce != nil {
		ce.Write(
			zap.Int64("balance_sum", totals.AccountBalanceSum),
			zap.Int64("bonus_issued", totals.BonusIssued),
			zap.Int64("penalties_collected", totals.PenaltiesCollected),
			zap.Int64("negative_balances", totals.NegativeBalances),
			zap.Int64("snapshot_violations", totals.SnapshotViolations),
			zap.Int64("unbalanced_accounts", totals.UnbalancedAccounts),
			zap.Int64("drift", totals.Drift()),
		)
	}
}
