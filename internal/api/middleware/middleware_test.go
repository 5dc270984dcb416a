package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTraceMiddlewareSanitizesIncomingID(t *testing.T) {
	cases := []struct {
		name   string
		header string
		value  string
		keep   bool
	}{
		{name: "trace_header", header: "X-Trace-ID", value: "abc-123", keep: true},
		{name: "request_id_fallback", header: "X-Request-ID", value: "req-9", keep: true},
		{name: "whitespace", header: "X-Trace-ID", value: "bad id", keep: false},
		{name: "too_long", header: "X-Trace-ID", value: strings.Repeat("a", maxTraceIDLength+1), keep: false},
		{name: "absent", keep: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = TraceIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, seen, rec.Header().Get("X-Trace-ID"))
			if tc.keep {
				assert.Equal(t, tc.value, seen)
				return
			}
			_, err := uuid.Parse(seen)
			assert.NoError(t, err)
		})
	}
}

func TestLoggingMiddlewareLevelsAndAccount(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	accountID := uuid.New()

	r := chi.NewRouter()
	r.Use(LoggingMiddleware(logger))
	r.Get("/v1/accounts/{id}/balance", func(w http.ResponseWriter, r *http.Request) {
		recordAccount(w, accountID)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/accounts/"+accountID.String()+"/balance", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/v1/accounts/{id}/balance", fields["route"])
	assert.Equal(t, accountID.String(), fields["account_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	_, hasAccount := entries[1].ContextMap()["account_id"]
	assert.False(t, hasAccount)
}

func TestRecoverMiddlewareWritesProblem(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := TraceMiddleware(RecoverMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("ledger exploded")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/transfers", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"code":"internal_error"`)
	assert.Contains(t, rec.Body.String(), rec.Header().Get("X-Trace-ID"))
	assert.Equal(t, 1, logs.Len())
}

func TestIdempotencyKeyScoping(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.NotEqual(t, scopedKey(a, "k1"), scopedKey(b, "k1"))
	assert.Equal(t, scopedKey(a, "k1"), scopedKey(a, "k1"))
}
