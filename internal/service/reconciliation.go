package service

import (
	"context"
	"fmt"

	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store Store
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store Store) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks completed snapshots, per-account balances and conservation against
// opening balances. Transfers and refunds leave the balance sum unchanged, so any
// drift means balances were edited outside the ledger.
func (s *ReconciliationService) Run(ctx context.Context) (*models.LedgerTotals, error) {
	totals, err := s.store.Reader().LedgerTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger totals: %w", err)
	}

	drift := totals.Drift()
	observability.SetLedgerDrift(drift)

	healthy := true
	if drift != 0 {
		healthy = false
		observability.IncrementLedgerImbalance("conservation")
		zap.L().Error("CRITICAL: balance sum does not match opening balances plus bonuses minus penalties",
			zap.Int64("drift", drift))
	}
	if totals.UnbalancedAccounts > 0 {
		healthy = false
		observability.IncrementLedgerImbalance("account_balance")
		zap.L().Error("CRITICAL: accounts whose balance does not match their completed movements",
			zap.Int64("count", totals.UnbalancedAccounts))
	}
	if totals.SnapshotViolations > 0 {
		healthy = false
		observability.IncrementLedgerImbalance("snapshot")
		zap.L().Error("CRITICAL: completed transactions with inconsistent balance snapshots",
			zap.Int64("count", totals.SnapshotViolations))
	}
	if totals.NegativeBalances > 0 {
		healthy = false
		observability.IncrementLedgerImbalance("negative_balance")
		zap.L().Error("CRITICAL: accounts with negative balance",
			zap.Int64("count", totals.NegativeBalances))
	}

	if healthy {
		zap.L().Info("Ledger Balanced",
			zap.Int64("balance_sum", totals.AccountBalanceSum),
			zap.Int64("bonus_issued", totals.BonusIssued),
			zap.Int64("penalties_collected", totals.PenaltiesCollected),
			zap.Int64("opening_sum", totals.OpeningBalanceSum),
		)
	}
	return totals, nil
}
