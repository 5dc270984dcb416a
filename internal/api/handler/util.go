package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/api/middleware"
	"github.com/unicard/ledger/internal/api/problem"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:   http.StatusBadRequest,
	domain.KindNotFound:     http.StatusNotFound,
	domain.KindBusinessRule: http.StatusUnprocessableEntity,
	domain.KindForbidden:    http.StatusForbidden,
	domain.KindConflict:     http.StatusConflict,
}

// RespondDomainError maps a ledger error onto a problem response by its kind.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
			zap.Error(err),
		)
		problem.WriteDetails(w, r, problem.Details{
			Type:   problem.Type("internal-server-error"),
			Status: http.StatusInternalServerError,
			Detail: "unexpected server error",
			Code:   "internal",
		})
		return
	}

	code := domain.CodeOf(err)
	d := problem.Details{
		Type:   problem.Type(strings.ReplaceAll(string(kind), "_", "-") + "/" + strings.ReplaceAll(code, "_", "-")),
		Status: status,
		Detail: err.Error(),
		Code:   code,
	}
	var limitErr *domain.LimitExceededError
	if errors.As(err, &limitErr) {
		d.Extensions = map[string]any{
			"window":            limitErr.Window,
			"daily_remaining":   limitErr.DailyRemaining,
			"monthly_remaining": limitErr.MonthlyRemaining,
		}
	}
	problem.WriteDetails(w, r, d)
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags. An empty body decodes as {}.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation-failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func requestActor(w http.ResponseWriter, r *http.Request) (models.ActorContext, bool) {
	actor, err := middleware.ActorFromRequest(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing account in auth context")
		return models.ActorContext{}, false
	}
	return actor, true
}

// pageFromQuery reads page and page_size; Normalize clamps out-of-range values.
func pageFromQuery(r *http.Request) models.Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return models.Page{Number: number, Size: size}.Normalize()
}
