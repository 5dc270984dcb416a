package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

// AccountService exposes the account directory fields the wallet shows.
type AccountService struct {
	store Store
}

func NewAccountService(store Store) *AccountService {
	return &AccountService{store: store}
}

// GetBalance returns the account with its current balance to its owner or an admin.
func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID, actor models.ActorContext) (*models.Account, error) {
	if err := authorizeAccount(accountID, actor); err != nil {
		return nil, err
	}
	return s.store.Reader().FindAccountByID(ctx, accountID)
}

// LookupRecipient resolves a uni id before a transfer. Only public fields are returned.
func (s *AccountService) LookupRecipient(ctx context.Context, uniID string) (*models.Account, error) {
	normalized, ok := domain.NormalizeUniID(uniID)
	if !ok {
		return nil, domain.ErrInvalidUniID
	}
	account, err := s.store.Reader().FindAccountByUniID(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if account.ID == systemAccountID {
		return nil, domain.ErrAccountNotFound
	}
	return &models.Account{ID: account.ID, UniID: account.UniID, Status: account.Status}, nil
}
