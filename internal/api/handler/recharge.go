package handler

import (
	"net/http"

	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/service"
)

// RechargeHandler drives the recharge request workflow.
type RechargeHandler struct {
	svc *service.RechargeService
}

func NewRechargeHandler(svc *service.RechargeService) *RechargeHandler {
	return &RechargeHandler{svc: svc}
}

type submitRechargeRequest struct {
	Points            int64  `json:"points" validate:"required"`
	ProofOfPaymentRef string `json:"proof_of_payment_ref" validate:"required"`
}

// Submit files a recharge request for the caller's own account.
func (h *RechargeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	var req submitRechargeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rr, err := h.svc.Submit(r.Context(), actor.ActorID, req.Points, req.ProofOfPaymentRef, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rr)
}

func (h *RechargeHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	rr, err := h.svc.Get(r.Context(), id, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rr)
}

func (h *RechargeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	rr, err := h.svc.Cancel(r.Context(), id, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rr)
}

func (h *RechargeHandler) ListForAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	list, err := h.svc.ListForAccount(r.Context(), accountID, pageFromQuery(r), actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	respondRechargeList(w, list)
}

// ListByStatus is the admin review queue; status defaults to pending.
func (h *RechargeHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "pending"
	}

	list, err := h.svc.ListByStatus(r.Context(), status, pageFromQuery(r), actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	respondRechargeList(w, list)
}

type approveRechargeRequest struct {
	Notes string `json:"notes"`
}

func (h *RechargeHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req approveRechargeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rr, err := h.svc.Approve(r.Context(), id, req.Notes, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rr)
}

type rejectRechargeRequest struct {
	Reason string `json:"reason" validate:"required"`
	Notes  string `json:"notes"`
}

func (h *RechargeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req rejectRechargeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rr, err := h.svc.Reject(r.Context(), id, req.Reason, req.Notes, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rr)
}

func respondRechargeList(w http.ResponseWriter, list []models.RechargeRequest) {
	if list == nil {
		list = []models.RechargeRequest{}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"requests": list})
}
