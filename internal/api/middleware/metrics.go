package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/unicard/ledger/internal/observability"
)

// MetricsMiddleware records request durations by route pattern, keeping label
// cardinality independent of account and transaction ids in the path.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.AddHTTPInFlight(1)
		defer observability.AddHTTPInFlight(-1)

		rw, ok := w.(*statusRecorder)
		if !ok {
			rw = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		}

		next.ServeHTTP(rw, r)

		observability.ObserveHTTP(r.Method, routePattern(r), rw.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
