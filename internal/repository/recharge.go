package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

const rechargeColumns = `id, request_ref, account_id, points_requested, amount_due::text, currency,
	proof_of_payment_ref, status, rejection_reason, admin_notes,
	processed_by, processed_at, transaction_id, created_at`

func scanRecharge(row pgx.Row) (*models.RechargeRequest, error) {
	var (
		r      models.RechargeRequest
		amount string
	)
	err := row.Scan(
		&r.ID, &r.RequestRef, &r.AccountID, &r.PointsRequested, &amount, &r.Currency,
		&r.ProofOfPaymentRef, &r.Status, &r.RejectionReason, &r.AdminNotes,
		&r.ProcessedBy, &r.ProcessedAt, &r.TransactionID, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	due, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount due %q: %w", amount, err)
	}
	r.AmountDue = due
	return &r, nil
}

func (q *Queries) InsertRechargeRequest(ctx context.Context, r *models.RechargeRequest) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO recharge_requests (id, request_ref, account_id, points_requested, amount_due, currency,
			proof_of_payment_ref, status, rejection_reason, admin_notes, processed_by, processed_at, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.ID, r.RequestRef, r.AccountID, r.PointsRequested, r.AmountDue.String(), r.Currency,
		r.ProofOfPaymentRef, r.Status, r.RejectionReason, r.AdminNotes, r.ProcessedBy, r.ProcessedAt, r.TransactionID, r.CreatedAt)
	return mapError(err, nil)
}

func (q *Queries) GetRechargeRequest(ctx context.Context, id uuid.UUID) (*models.RechargeRequest, error) {
	r, err := scanRecharge(q.db.QueryRow(ctx, `SELECT `+rechargeColumns+` FROM recharge_requests WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, domain.ErrRechargeNotFound)
	}
	return r, nil
}

func (q *Queries) GetRechargeRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.RechargeRequest, error) {
	r, err := scanRecharge(q.db.QueryRow(ctx, `SELECT `+rechargeColumns+` FROM recharge_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err, domain.ErrRechargeNotFound)
	}
	return r, nil
}

func (q *Queries) RechargeRefExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recharge_requests WHERE request_ref = $1)`, ref).Scan(&exists); err != nil {
		return false, mapError(err, nil)
	}
	return exists, nil
}

// ListRechargeRequests filters by account when accountID is set and by status when status is non-empty.
func (q *Queries) ListRechargeRequests(ctx context.Context, accountID *uuid.UUID, status string, limit, offset int) ([]models.RechargeRequest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+rechargeColumns+`
		FROM recharge_requests
		WHERE ($1::uuid IS NULL OR account_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, accountID, status, limit, offset)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []models.RechargeRequest
	for rows.Next() {
		r, err := scanRecharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recharge request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRechargeRequest only touches requests that are still pending.
func (q *Queries) UpdateRechargeRequest(ctx context.Context, r *models.RechargeRequest) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE recharge_requests
		SET status = $2, rejection_reason = $3, admin_notes = $4,
			processed_by = $5, processed_at = $6, transaction_id = $7
		WHERE id = $1 AND status = 'pending'
	`, r.ID, r.Status, r.RejectionReason, r.AdminNotes, r.ProcessedBy, r.ProcessedAt, r.TransactionID)
	if err != nil {
		return 0, mapError(err, nil)
	}
	return tag.RowsAffected(), nil
}
