package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/service"
)

// AccountHandler serves balance, history and reporting reads.
type AccountHandler struct {
	accounts *service.AccountService
	query    *service.QueryService
}

func NewAccountHandler(accounts *service.AccountService, query *service.QueryService) *AccountHandler {
	return &AccountHandler{accounts: accounts, query: query}
}

type balanceResponse struct {
	AccountID string `json:"account_id"`
	UniID     string `json:"uni_id"`
	Balance   int64  `json:"balance"`
	Status    string `json:"status"`
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	account, err := h.accounts.GetBalance(r.Context(), accountID, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, balanceResponse{
		AccountID: account.ID.String(),
		UniID:     account.UniID,
		Balance:   account.Balance,
		Status:    account.Status,
	})
}

type recipientResponse struct {
	AccountID string `json:"account_id"`
	UniID     string `json:"uni_id"`
	Status    string `json:"status"`
}

// LookupRecipient resolves a uniId before a transfer without revealing the balance.
func (h *AccountHandler) LookupRecipient(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.LookupRecipient(r.Context(), chi.URLParam(r, "uniId"))
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, recipientResponse{
		AccountID: account.ID.String(),
		UniID:     account.UniID,
		Status:    account.Status,
	})
}

type historyResponse struct {
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Transactions []models.Transaction `json:"transactions"`
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	page := pageFromQuery(r)
	filter := models.TransactionFilter{
		Type:   r.URL.Query().Get("type"),
		Status: r.URL.Query().Get("status"),
	}

	txns, err := h.query.History(r.Context(), accountID, filter, page, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	RespondJSON(w, http.StatusOK, historyResponse{Page: page.Number, PageSize: page.Size, Transactions: txns})
}

func (h *AccountHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.query.Summary(r.Context(), accountID, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}

func (h *AccountHandler) LimitStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	status, err := h.query.LimitStatus(r.Context(), accountID, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

func (h *AccountHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	txn, err := h.query.GetByID(r.Context(), id, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, txn)
}

func (h *AccountHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.query.AuditTrail(r.Context(), id, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
