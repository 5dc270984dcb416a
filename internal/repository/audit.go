package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/models"
)

func (q *Queries) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_entries (id, transaction_id, action, performed_by, ip_address, user_agent, details, risk_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.TransactionID, e.Action, e.PerformedBy, e.IPAddress, e.UserAgent, e.Details, e.RiskScore, e.CreatedAt)
	return mapError(err, nil)
}

// ListAuditEntries returns the trail of one transaction, oldest first.
func (q *Queries) ListAuditEntries(ctx context.Context, transactionID uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, transaction_id, action, performed_by, ip_address, user_agent, details, risk_score, created_at
		FROM audit_entries
		WHERE transaction_id = $1
		ORDER BY created_at ASC, seq ASC
	`, transactionID)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Action, &e.PerformedBy, &e.IPAddress, &e.UserAgent, &e.Details, &e.RiskScore, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
