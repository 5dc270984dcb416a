package handler

import (
	"net/http"

	"github.com/unicard/ledger/internal/service"
)

// LimitHandler lets admins tune and suspend per-account spend limits.
type LimitHandler struct {
	limits *service.LimitService
}

func NewLimitHandler(limits *service.LimitService) *LimitHandler {
	return &LimitHandler{limits: limits}
}

type setLimitsRequest struct {
	DailyLimit   int64 `json:"daily_limit" validate:"required,gt=0"`
	MonthlyLimit int64 `json:"monthly_limit" validate:"required,gtefield=DailyLimit"`
}

func (h *LimitHandler) SetLimits(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req setLimitsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	status, err := h.limits.SetLimits(r.Context(), accountID, req.DailyLimit, req.MonthlyLimit, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

type suspendRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *LimitHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req suspendRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	status, err := h.limits.Suspend(r.Context(), accountID, req.Reason, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

func (h *LimitHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	status, err := h.limits.Unsuspend(r.Context(), accountID, actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}
