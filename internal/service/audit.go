package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/models"
)

// AuditService writes immutable audit trail entries.
type AuditService struct {
	now Clock
}

func NewAuditService(now Clock) *AuditService {
	if now == nil {
		now = time.Now
	}
	return &AuditService{now: now}
}

// Write stores a single immutable audit record inside the caller's transaction.
func (s *AuditService) Write(ctx context.Context, tx Tx, transactionID uuid.UUID, actor models.ActorContext, action, details string, riskScore int) error {
	entry := &models.AuditEntry{
		ID:            uuid.New(),
		TransactionID: transactionID,
		Action:        action,
		PerformedBy:   actor.ActorPtr(),
		IPAddress:     actor.IPAddress,
		UserAgent:     actor.UserAgent,
		Details:       details,
		RiskScore:     riskScore,
		CreatedAt:     s.now(),
	}
	if err := tx.InsertAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
