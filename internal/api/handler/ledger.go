package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/service"
)

// LedgerHandler exposes point movements.
type LedgerHandler struct {
	ledger *service.LedgerService
}

func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type transferRequest struct {
	ToUniID     string `json:"to_uni_id" validate:"required"`
	Points      int64  `json:"points" validate:"required"`
	Description string `json:"description"`
}

// Transfer moves points from the caller's account to another member.
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	txn, err := h.ledger.Transfer(r.Context(), actor.ActorID, req.ToUniID, req.Points, req.Description, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, txn)
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *LedgerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req refundRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	txn, err := h.ledger.Refund(r.Context(), id, req.Reason, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, txn)
}

type bonusRequest struct {
	AccountID   uuid.UUID `json:"account_id" validate:"required"`
	Points      int64     `json:"points" validate:"required"`
	SourceRef   string    `json:"source_ref" validate:"max=64"`
	Description string    `json:"description"`
}

func (h *LedgerHandler) Bonus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req bonusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	txn, err := h.ledger.Bonus(r.Context(), req.AccountID, req.Points, req.SourceRef, req.Description, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, txn)
}

type penaltyRequest struct {
	AccountID uuid.UUID `json:"account_id" validate:"required"`
	Points    int64     `json:"points" validate:"required"`
	Reason    string    `json:"reason" validate:"required,max=500"`
}

func (h *LedgerHandler) Penalty(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req penaltyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	txn, err := h.ledger.Penalty(r.Context(), req.AccountID, req.Points, req.Reason, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, txn)
}
