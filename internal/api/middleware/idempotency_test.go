package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unicard/ledger/internal/idempotency"
	"github.com/unicard/ledger/internal/testutil/memstore"
	"go.uber.org/zap"
)

// countingHandler answers with status and counts how often it ran.
func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"run":` + strconv.Itoa(*calls) + `}`))
	})
}

func postWithKey(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newGate(status int, calls *int) http.Handler {
	store := idempotency.NewStore(nil, memstore.NewKeys(nil), time.Hour)
	return IdempotencyMiddleware(store, zap.NewNop())(countingHandler(status, calls))
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	var calls int
	h := newGate(http.StatusCreated, &calls)

	first := postWithKey(h, "k1", `{"points":10}`)
	second := postWithKey(h, "k1", `{"points":10}`)

	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Empty(t, first.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, idempotency.SourcePostgres, second.Header().Get("X-Idempotent-Replay"))
}

func TestIdempotencyRejectsReusedKey(t *testing.T) {
	var calls int
	h := newGate(http.StatusCreated, &calls)

	postWithKey(h, "k1", `{"points":10}`)
	rec := postWithKey(h, "k1", `{"points":11}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "idempotency/key-conflict")
	assert.Equal(t, 1, calls)
}

func TestIdempotencyFreesKeyAfterServerError(t *testing.T) {
	var calls int
	h := newGate(http.StatusServiceUnavailable, &calls)

	postWithKey(h, "k1", `{}`)
	rec := postWithKey(h, "k1", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 2, calls)
	assert.Empty(t, rec.Header().Get("X-Idempotent-Replay"))
}

func TestIdempotencyKeyValidation(t *testing.T) {
	var calls int
	h := newGate(http.StatusCreated, &calls)

	assert.Equal(t, http.StatusBadRequest, postWithKey(h, "", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, postWithKey(h, strings.Repeat("k", maxIdempotencyKeyLength+1), `{}`).Code)
	assert.Zero(t, calls)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, calls)
}
