package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/api/problem"
)

// PublicRateLimiter limits requests per IP for unauthenticated routes.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithLimitHandler(rateLimited(fmt.Sprintf("Rate limit of %d req/s exceeded for this IP", rps))),
	)
}

// AuthRateLimiter limits authenticated callers by account id, so a user behind a
// shared address is not throttled for their neighbours' transfers.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if accountID := AccountIDFromContext(r.Context()); accountID != uuid.Nil {
				return "account:" + accountID.String(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(rateLimited(fmt.Sprintf("Rate limit of %d req/s exceeded for this account", rps))),
	)
}

func rateLimited(detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.WriteDetails(w, r, problem.Details{
			Type:   problem.Type("rate-limit-exceeded"),
			Status: http.StatusTooManyRequests,
			Detail: detail,
			Code:   "rate_limited",
		})
	}
}
