package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

// Refunds never rewrite the original row, so completed is terminal here.
var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusProcessing: {},
		domain.TxStatusCompleted:  {},
		domain.TxStatusFailed:     {},
		domain.TxStatusCancelled:  {},
	},
	domain.TxStatusProcessing: {
		domain.TxStatusCompleted: {},
		domain.TxStatusFailed:    {},
		domain.TxStatusCancelled: {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusFailed:    {},
	domain.TxStatusCancelled: {},
	domain.TxStatusRefunded:  {},
}

var rechargeTransitions = map[string]map[string]struct{}{
	domain.RechargeStatusPending: {
		domain.RechargeStatusApproved:  {},
		domain.RechargeStatusRejected:  {},
		domain.RechargeStatusCancelled: {},
	},
	domain.RechargeStatusApproved:  {},
	domain.RechargeStatusRejected:  {},
	domain.RechargeStatusCancelled: {},
}

func normalizeState(state string) string {
	return strings.ToLower(strings.TrimSpace(state))
}

func canTransition(table map[string]map[string]struct{}, current, next string) bool {
	nextStates, ok := table[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

func transitionTransactionState(ctx context.Context, tx Tx, audit *AuditService, txn *models.Transaction, nextState string, actor models.ActorContext, action, details string, at time.Time) error {
	if normalizeState(txn.Status) == normalizeState(nextState) {
		return nil
	}
	if !canTransition(transactionTransitions, txn.Status, nextState) {
		return fmt.Errorf("%w: transaction %s -> %s", domain.ErrInvalidTransition, txn.Status, nextState)
	}

	rows, err := tx.UpdateTransactionStatus(ctx, txn.ID, nextState, at)
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}

	txn.Status = nextState
	switch nextState {
	case domain.TxStatusCompleted:
		txn.ProcessedAt = &at
	case domain.TxStatusFailed:
		txn.FailedAt = &at
	}

	return audit.Write(ctx, tx, txn.ID, actor, action, details, txn.RiskScore)
}

func transitionRechargeState(req *models.RechargeRequest, nextState string) error {
	if !canTransition(rechargeTransitions, req.Status, nextState) {
		if normalizeState(req.Status) != domain.RechargeStatusPending {
			return fmt.Errorf("%w: request is %s", domain.ErrRequestAlreadyProcessed, req.Status)
		}
		return fmt.Errorf("%w: recharge %s -> %s", domain.ErrInvalidTransition, req.Status, nextState)
	}
	req.Status = nextState
	return nil
}
