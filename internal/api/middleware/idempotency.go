package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/api/problem"
	"github.com/unicard/ledger/internal/idempotency"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLength = 64

// IdempotencyMiddleware requires an Idempotency-Key on every write. The first
// request under a key runs; repeats with the same body get the stored response.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		g := &idempotencyGate{store: store, logger: logger, next: next}
		return http.HandlerFunc(g.serve)
	}
}

type idempotencyGate struct {
	store  *idempotency.Store
	logger *zap.Logger
	next   http.Handler
}

func (g *idempotencyGate) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
		g.next.ServeHTTP(w, r)
		return
	}

	claim, ok := g.claimFor(w, r)
	if !ok {
		return
	}

	switch rp, err := g.store.Replay(r.Context(), claim); {
	case err == nil:
		g.replay(w, rp, "replay")
		return
	case errors.Is(err, idempotency.ErrKeyReused):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), http.StatusText(http.StatusConflict),
			"Idempotency-Key was already used with a different request")
		return
	case errors.Is(err, idempotency.ErrPending):
		g.awaitOwner(w, r, claim, "replay_after_wait")
		return
	case !errors.Is(err, idempotency.ErrUnknownKey):
		// Fall through to the claim, which settles the question on the primary store.
		observability.IncrementIdempotencyEvent("lookup_error")
		g.logger.Warn("Idempotency replay lookup failed", zap.String("key", claim.Key), zap.Error(err))
	}

	won, err := g.store.Claim(r.Context(), claim)
	if err != nil {
		observability.IncrementIdempotencyEvent("reserve_error")
		g.logger.Error("Idempotency claim failed", zap.String("key", claim.Key), zap.Error(err))
		problem.Write(w, r, http.StatusInternalServerError, problem.Type("idempotency/unavailable"), http.StatusText(http.StatusInternalServerError),
			"idempotency store unavailable")
		return
	}
	if !won {
		g.awaitOwner(w, r, claim, "replay_after_reserve")
		return
	}
	observability.IncrementIdempotencyEvent("reserved")

	rec := &bodyRecorder{ResponseWriter: w}
	g.next.ServeHTTP(rec, r)
	// The movement may have committed even if the caller went away.
	g.settle(context.WithoutCancel(r.Context()), claim, rec)
}

// claimFor validates the header and buffers the body so the handler can read it again.
func (g *idempotencyGate) claimFor(w http.ResponseWriter, r *http.Request) (idempotency.Claim, bool) {
	key := r.Header.Get("Idempotency-Key")
	switch {
	case key == "":
		observability.IncrementIdempotencyEvent("missing_key")
		problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), http.StatusText(http.StatusBadRequest),
			"Idempotency-Key header is required")
		return idempotency.Claim{}, false
	case len(key) > maxIdempotencyKeyLength:
		observability.IncrementIdempotencyEvent("invalid_key")
		problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/invalid-key"), http.StatusText(http.StatusBadRequest),
			"Idempotency-Key must be at most 64 characters")
		return idempotency.Claim{}, false
	}

	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest),
			"Failed to read request body")
		return idempotency.Claim{}, false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	return idempotency.Claim{
		Key:    scopedKey(AccountIDFromContext(r.Context()), key),
		Hash:   hashRequest(r.Method, r.URL.Path, body),
		Method: r.Method,
		Path:   r.URL.Path,
	}, true
}

// awaitOwner waits for the request that holds the claim and answers with its response.
func (g *idempotencyGate) awaitOwner(w http.ResponseWriter, r *http.Request, claim idempotency.Claim, event string) {
	rp, err := g.store.Await(r.Context(), claim)
	if err == nil {
		g.replay(w, rp, event)
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	g.logger.Warn("Gave up waiting for idempotent request", zap.String("key", claim.Key), zap.Error(err))
	problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), http.StatusText(http.StatusConflict),
		"a request with this Idempotency-Key is still processing")
}

// settle stores a final response. Conflicts and server errors abandon the claim so a retry can run.
func (g *idempotencyGate) settle(ctx context.Context, claim idempotency.Claim, rec *bodyRecorder) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusConflict || status >= http.StatusInternalServerError {
		if err := g.store.Abandon(ctx, claim); err != nil {
			g.logger.Warn("Idempotency claim not abandoned", zap.String("key", claim.Key), zap.Error(err))
		}
		observability.IncrementIdempotencyEvent("released")
		return
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if _, err := g.store.Settle(ctx, claim, status, rec.body.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		g.logger.Warn("Idempotency response not stored", zap.String("key", claim.Key), zap.Error(err))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

func (g *idempotencyGate) replay(w http.ResponseWriter, rp *idempotency.Replay, event string) {
	observability.IncrementIdempotencyEvent(event)
	w.Header().Set("Content-Type", rp.ContentType)
	w.Header().Set("X-Idempotent-Replay", rp.Source)
	w.WriteHeader(rp.Status)
	_, _ = w.Write(rp.Body)
}

// scopedKey namespaces a client key by account so two callers never share a replay.
func scopedKey(accountID uuid.UUID, key string) string {
	if accountID == uuid.Nil {
		return key
	}
	return accountID.String() + ":" + key
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// bodyRecorder tees the handler's response so it can be stored after it is sent.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}
