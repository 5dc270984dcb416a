package middleware

import (
	"net/http"

	"github.com/unicard/ledger/internal/api/problem"
	"go.uber.org/zap"
)

// RecoverMiddleware converts panics into problem responses. A panic inside a ledger
// operation has already rolled back its store transaction by the time it reaches here.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("trace_id", TraceIDFromContext(r.Context())),
					zap.Stack("stack"),
				)

				problem.WriteDetails(w, r, problem.Details{
					Type:   problem.Type("internal-server-error"),
					Status: http.StatusInternalServerError,
					Detail: "unexpected server error",
					Code:   "internal_error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
