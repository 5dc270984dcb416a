package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

var transactionTypes = map[string]struct{}{
	domain.TxTypeTransfer: {},
	domain.TxTypeRefund:   {},
	domain.TxTypeBonus:    {},
	domain.TxTypePenalty:  {},
}

// QueryService serves read-only views of the ledger with access control.
type QueryService struct {
	store  Store
	limits *LimitService
}

func NewQueryService(store Store, limits *LimitService) *QueryService {
	return &QueryService{store: store, limits: limits}
}

func authorizeAccount(accountID uuid.UUID, actor models.ActorContext) error {
	if actor.IsAdmin || actor.ActorID == accountID {
		return nil
	}
	return domain.ErrAccessDenied
}

// History lists transactions where accountID is sender or receiver, newest first.
func (s *QueryService) History(ctx context.Context, accountID uuid.UUID, filter models.TransactionFilter, page models.Page, actor models.ActorContext) ([]models.Transaction, error) {
	if err := authorizeAccount(accountID, actor); err != nil {
		return nil, err
	}
	filter.Type = normalizeState(filter.Type)
	filter.Status = normalizeState(filter.Status)
	if filter.Type != "" {
		if _, ok := transactionTypes[filter.Type]; !ok {
			return nil, domain.Validationf("unknown transaction type %q", filter.Type)
		}
	}
	if filter.Status != "" {
		if _, ok := transactionTransitions[filter.Status]; !ok {
			return nil, domain.Validationf("unknown transaction status %q", filter.Status)
		}
	}

	reader := s.store.Reader()
	if _, err := reader.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	page = page.Normalize()
	return reader.ListTransactionsForAccount(ctx, accountID, filter, page.Size, page.Offset())
}

// GetByID returns a transaction visible to its sender, its receiver or an admin.
func (s *QueryService) GetByID(ctx context.Context, transactionID uuid.UUID, actor models.ActorContext) (*models.Transaction, error) {
	txn, err := s.store.Reader().GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !txn.Involves(actor.ActorID) {
		return nil, domain.ErrAccessDenied
	}
	return txn, nil
}

// AuditTrail is admin only; entries come back oldest first.
func (s *QueryService) AuditTrail(ctx context.Context, transactionID uuid.UUID, actor models.ActorContext) ([]models.AuditEntry, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	reader := s.store.Reader()
	if _, err := reader.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	return reader.ListAuditEntries(ctx, transactionID)
}

func (s *QueryService) Summary(ctx context.Context, accountID uuid.UUID, actor models.ActorContext) (*models.AccountSummary, error) {
	if err := authorizeAccount(accountID, actor); err != nil {
		return nil, err
	}
	reader := s.store.Reader()
	if _, err := reader.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return reader.SummarizeAccount(ctx, accountID)
}

func (s *QueryService) LimitStatus(ctx context.Context, accountID uuid.UUID, actor models.ActorContext) (*models.LimitStatus, error) {
	if err := authorizeAccount(accountID, actor); err != nil {
		return nil, err
	}
	return s.limits.Status(ctx, accountID)
}
