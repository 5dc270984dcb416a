package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/service"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds every SQL statement the ledger runs.
type Queries struct {
	db DBTX
}

var _ service.Tx = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const (
	refundIndexName         = "transactions_refund_of_live_idx"
	transactionRefIndexName = "transactions_transaction_ref_key"
	rechargeRefIndexName    = "recharge_requests_request_ref_key"

	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// mapError translates driver errors into ledger errors. notFound replaces pgx.ErrNoRows when set.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s", domain.ErrPersistenceConflict, pgErr.Message)
		case codeUniqueViolation:
			switch pgErr.ConstraintName {
			case refundIndexName:
				return domain.ErrAlreadyRefunded
			case transactionRefIndexName, rechargeRefIndexName:
				// Another unit claimed the same reference after our existence check.
				return fmt.Errorf("%w: %w", domain.ErrPersistenceConflict, domain.ErrDuplicateReference)
			}
		}
	}
	return err
}
