package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/models"
)

// Reader is the read side of the ledger's persistence contract.
type Reader interface {
	FindAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindAccountByUniID(ctx context.Context, uniID string) (*models.Account, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	TransactionRefExists(ctx context.Context, ref string) (bool, error)
	ListTransactionsForAccount(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	SummarizeAccount(ctx context.Context, accountID uuid.UUID) (*models.AccountSummary, error)
	ListAuditEntries(ctx context.Context, transactionID uuid.UUID) ([]models.AuditEntry, error)
	GetRechargeRequest(ctx context.Context, id uuid.UUID) (*models.RechargeRequest, error)
	RechargeRefExists(ctx context.Context, ref string) (bool, error)
	ListRechargeRequests(ctx context.Context, accountID *uuid.UUID, status string, limit, offset int) ([]models.RechargeRequest, error)
	LedgerTotals(ctx context.Context) (*models.LedgerTotals, error)
}

// Tx is the write side, valid only inside Store.RunInTx.
// Implementations return domain.ErrPersistenceConflict for lost races so callers can retry.
type Tx interface {
	Reader

	// LockAccounts row-locks the given accounts in ascending id order.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error)
	// UpdateAccountBalance is a conditional write: it applies only while the balance still equals expected.
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, expected, next int64) error

	// GetLimitRecordForUpdate locks the account's limit record, creating it from defaults when absent.
	GetLimitRecordForUpdate(ctx context.Context, accountID uuid.UUID, defaults models.LimitRecord) (*models.LimitRecord, error)
	SaveLimitRecord(ctx context.Context, rec *models.LimitRecord) error

	// InsertTransaction returns domain.ErrAlreadyRefunded when a second live refund targets the same original.
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) (int64, error)
	// FindRefundOf returns the non-failed refund of originalID, or nil when there is none.
	FindRefundOf(ctx context.Context, originalID uuid.UUID) (*models.Transaction, error)

	InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error

	InsertRechargeRequest(ctx context.Context, r *models.RechargeRequest) error
	GetRechargeRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.RechargeRequest, error)
	UpdateRechargeRequest(ctx context.Context, r *models.RechargeRequest) (int64, error)
}

// Store scopes ledger work into atomic units.
type Store interface {
	Reader() Reader
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time
