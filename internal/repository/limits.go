package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/models"
)

const limitColumns = `account_id, daily_limit, monthly_limit, daily_used, monthly_used, daily_transaction_count,
	last_reset_daily, last_reset_monthly, is_suspended, suspension_reason, updated_at`

// GetLimitRecordForUpdate creates the record from defaults on first use, then locks it.
func (q *Queries) GetLimitRecordForUpdate(ctx context.Context, accountID uuid.UUID, defaults models.LimitRecord) (*models.LimitRecord, error) {
	_, err := q.db.Exec(ctx, `
		INSERT INTO limit_records (`+limitColumns+`)
		VALUES ($1, $2, $3, 0, 0, 0, $4, $5, FALSE, '', $6)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, defaults.DailyLimit, defaults.MonthlyLimit, defaults.LastResetDaily, defaults.LastResetMonthly, defaults.UpdatedAt)
	if err != nil {
		return nil, mapError(err, nil)
	}

	var r models.LimitRecord
	err = q.db.QueryRow(ctx, `SELECT `+limitColumns+` FROM limit_records WHERE account_id = $1 FOR UPDATE`, accountID).Scan(
		&r.AccountID, &r.DailyLimit, &r.MonthlyLimit, &r.DailyUsed, &r.MonthlyUsed, &r.DailyTransactionCount,
		&r.LastResetDaily, &r.LastResetMonthly, &r.IsSuspended, &r.SuspensionReason, &r.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, nil)
	}
	return &r, nil
}

func (q *Queries) SaveLimitRecord(ctx context.Context, r *models.LimitRecord) error {
	_, err := q.db.Exec(ctx, `
		UPDATE limit_records
		SET daily_limit = $2, monthly_limit = $3, daily_used = $4, monthly_used = $5,
			daily_transaction_count = $6, last_reset_daily = $7, last_reset_monthly = $8,
			is_suspended = $9, suspension_reason = $10, updated_at = $11
		WHERE account_id = $1
	`, r.AccountID, r.DailyLimit, r.MonthlyLimit, r.DailyUsed, r.MonthlyUsed,
		r.DailyTransactionCount, r.LastResetDaily, r.LastResetMonthly,
		r.IsSuspended, r.SuspensionReason, r.UpdatedAt)
	return mapError(err, nil)
}
