package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

const transactionColumns = `id, transaction_ref, from_account_id, from_uni_id, to_account_id, to_uni_id,
	points, status, type, description,
	sender_before, sender_after, receiver_before, receiver_after,
	risk_score, metadata, refund_of, created_at, processed_at, failed_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		t        models.Transaction
		metadata []byte
	)
	err := row.Scan(
		&t.ID, &t.TransactionRef, &t.FromAccountID, &t.FromUniID, &t.ToAccountID, &t.ToUniID,
		&t.Points, &t.Status, &t.Type, &t.Description,
		&t.BalanceSnapshots.SenderBefore, &t.BalanceSnapshots.SenderAfter,
		&t.BalanceSnapshots.ReceiverBefore, &t.BalanceSnapshots.ReceiverAfter,
		&t.RiskScore, &metadata, &t.RefundOf, &t.CreatedAt, &t.ProcessedAt, &t.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	return &t, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, domain.ErrTransactionNotFound)
	}
	return t, nil
}

func (q *Queries) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err, domain.ErrTransactionNotFound)
	}
	return t, nil
}

func (q *Queries) TransactionRefExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_ref = $1)`, ref).Scan(&exists)
	if err != nil {
		return false, mapError(err, nil)
	}
	return exists, nil
}

// ListTransactionsForAccount returns movements where the account is either party, newest first.
func (q *Queries) ListTransactionsForAccount(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
			AND ($2 = '' OR type = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, accountID, filter.Type, filter.Status, limit, offset)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (q *Queries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode transaction metadata: %w", err)
	}
	_, err = q.db.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		t.ID, t.TransactionRef, t.FromAccountID, t.FromUniID, t.ToAccountID, t.ToUniID,
		t.Points, t.Status, t.Type, t.Description,
		t.BalanceSnapshots.SenderBefore, t.BalanceSnapshots.SenderAfter,
		t.BalanceSnapshots.ReceiverBefore, t.BalanceSnapshots.ReceiverAfter,
		t.RiskScore, metadata, t.RefundOf, t.CreatedAt, t.ProcessedAt, t.FailedAt,
	)
	return mapError(err, nil)
}

// UpdateTransactionStatus stamps processed_at on completion and failed_at on failure.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET status = $2,
			processed_at = CASE WHEN $2 = 'completed' THEN $3 ELSE processed_at END,
			failed_at = CASE WHEN $2 = 'failed' THEN $3 ELSE failed_at END
		WHERE id = $1
	`, id, status, at)
	if err != nil {
		return 0, mapError(err, nil)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) FindRefundOf(ctx context.Context, originalID uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE refund_of = $1 AND status <> 'failed'
		LIMIT 1
	`, originalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, nil)
	}
	return t, nil
}
