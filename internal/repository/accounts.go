package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

const accountColumns = `id, uni_id, balance, status, role, reliability_score::text, created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		a           models.Account
		reliability string
	)
	if err := row.Scan(&a.ID, &a.UniID, &a.Balance, &a.Status, &a.Role, &reliability, &a.CreatedAt); err != nil {
		return nil, err
	}
	score, err := decimal.NewFromString(reliability)
	if err != nil {
		return nil, fmt.Errorf("parse reliability score %q: %w", reliability, err)
	}
	a.ReliabilityScore = score
	return &a, nil
}

func (q *Queries) FindAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, domain.ErrAccountNotFound)
	}
	return a, nil
}

func (q *Queries) FindAccountByUniID(ctx context.Context, uniID string) (*models.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE uni_id = $1`, uniID))
	if err != nil {
		return nil, mapError(err, domain.ErrAccountNotFound)
	}
	return a, nil
}

// LockAccounts row-locks accounts one at a time in ascending id order so that two
// movements between the same pair never wait on each other in opposite order.
func (q *Queries) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	ordered := append([]uuid.UUID(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	locked := make(map[uuid.UUID]*models.Account, len(ordered))
	for _, id := range ordered {
		if _, seen := locked[id]; seen {
			continue
		}
		a, err := scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("lock account %s: %w", id, mapError(err, nil))
		}
		locked[id] = a
	}
	return locked, nil
}

func (q *Queries) UpdateAccountBalance(ctx context.Context, id uuid.UUID, expected, next int64) error {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET balance = $3 WHERE id = $1 AND balance = $2`, id, expected, next)
	if err != nil {
		return mapError(err, nil)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: balance of %s changed", domain.ErrPersistenceConflict, id)
	}
	return nil
}

func (q *Queries) SummarizeAccount(ctx context.Context, accountID uuid.UUID) (*models.AccountSummary, error) {
	sum := &models.AccountSummary{AccountID: accountID}
	err := q.db.QueryRow(ctx, `
		SELECT
			a.balance,
			COALESCE(SUM(t.points) FILTER (WHERE t.type = 'transfer' AND t.from_account_id = a.id), 0),
			COALESCE(SUM(t.points) FILTER (WHERE t.type = 'transfer' AND t.to_account_id = a.id), 0),
			COALESCE(SUM(t.points) FILTER (WHERE t.type = 'bonus' AND t.to_account_id = a.id), 0),
			COALESCE(SUM(t.points) FILTER (WHERE t.type = 'refund' AND t.to_account_id = a.id), 0),
			COALESCE(SUM(t.points) FILTER (WHERE t.type = 'penalty' AND t.from_account_id = a.id), 0),
			COUNT(t.id)
		FROM accounts a
		LEFT JOIN transactions t
			ON t.status = 'completed' AND (t.from_account_id = a.id OR t.to_account_id = a.id)
		WHERE a.id = $1
		GROUP BY a.id, a.balance
	`, accountID).Scan(&sum.Balance, &sum.TotalSent, &sum.TotalReceived, &sum.TotalBonus, &sum.TotalRefunded, &sum.TotalPenalties, &sum.Completed)
	if err != nil {
		return nil, mapError(err, domain.ErrAccountNotFound)
	}
	return sum, nil
}

func (q *Queries) LedgerTotals(ctx context.Context) (*models.LedgerTotals, error) {
	totals := &models.LedgerTotals{}
	err := q.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(a.balance), 0),
			COALESCE(SUM(a.opening_balance), 0),
			COUNT(*) FILTER (WHERE a.balance < 0),
			COUNT(*) FILTER (WHERE a.balance <> a.opening_balance + m.credits - m.debits)
		FROM accounts a
		CROSS JOIN LATERAL (
			SELECT
				COALESCE(SUM(t.points) FILTER (WHERE t.to_account_id = a.id), 0) AS credits,
				COALESCE(SUM(t.points) FILTER (WHERE t.from_account_id = a.id), 0) AS debits
			FROM transactions t
			WHERE t.status = 'completed' AND (t.from_account_id = a.id OR t.to_account_id = a.id)
		) m
		WHERE a.id <> $1
	`, uuid.MustParse(domain.SystemAccountID)).Scan(
		&totals.AccountBalanceSum, &totals.OpeningBalanceSum, &totals.NegativeBalances, &totals.UnbalancedAccounts)
	if err != nil {
		return nil, fmt.Errorf("sum account balances: %w", err)
	}

	err = q.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(points) FILTER (WHERE type = 'bonus'), 0),
			COALESCE(SUM(points) FILTER (WHERE type = 'penalty'), 0),
			COUNT(*) FILTER (WHERE
				(type <> 'bonus' AND sender_after <> sender_before - points)
				OR (type <> 'penalty' AND receiver_after <> receiver_before + points))
		FROM transactions
		WHERE status = 'completed'
	`).Scan(&totals.BonusIssued, &totals.PenaltiesCollected, &totals.SnapshotViolations)
	if err != nil {
		return nil, fmt.Errorf("sum completed transactions: %w", err)
	}
	return totals, nil
}
