package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unicard/ledger/internal/models"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) Run(context.Context) (*models.LedgerTotals, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &models.LedgerTotals{}, nil
}

func TestReconciliationWorkerRunsImmediatelyAndOnTick(t *testing.T) {
	rec := &countingReconciler{}
	stop := NewReconciliationWorker(rec).WithInterval(10 * time.Millisecond).Run(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return rec.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestReconciliationWorkerSurvivesErrors(t *testing.T) {
	rec := &countingReconciler{err: errors.New("db down")}
	w := NewReconciliationWorker(rec).WithInterval(10 * time.Millisecond)
	stop := w.Run(context.Background())

	require.Eventually(t, func() bool { return rec.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	stop()
	stop()
}

type fakePurger struct {
	cutoffs []time.Time
}

func (p *fakePurger) Purge(_ context.Context, now time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, now)
	return 2, nil
}

func TestIdempotencyPurgeWorkerProcessOnce(t *testing.T) {
	p := &fakePurger{}
	w := NewIdempotencyPurgeWorker(p)
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.ProcessOnce(context.Background())
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, fixed, p.cutoffs[0])
}
