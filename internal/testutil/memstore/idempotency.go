package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/unicard/ledger/internal/repository"
)

// Keys is an in-memory idempotency key table with the repository's not-found semantics.
type Keys struct {
	mu   sync.Mutex
	now  func() time.Time
	rows map[string]repository.IdempotencyKey
}

func NewKeys(now func() time.Time) *Keys {
	if now == nil {
		now = time.Now
	}
	return &Keys{now: now, rows: make(map[string]repository.IdempotencyKey)}
}

func (k *Keys) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	row, ok := k.rows[key]
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return row, nil
}

func (k *Keys) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, taken := k.rows[arg.IdempotencyKey]; taken {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row := repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
		CreatedAt:      k.now(),
	}
	k.rows[arg.IdempotencyKey] = row
	return row, nil
}

func (k *Keys) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	row, ok := k.rows[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	now := k.now()
	row.InProgress = false
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	row.ContentType = arg.ContentType
	row.CompletedAt = &now
	k.rows[arg.IdempotencyKey] = row
	return row, nil
}

func (k *Keys) ReleaseIdempotencyKey(_ context.Context, key, requestHash string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if row, ok := k.rows[key]; ok && row.InProgress && row.RequestHash == requestHash {
		delete(k.rows, key)
	}
	return nil
}

func (k *Keys) PurgeIdempotencyKeys(_ context.Context, cutoff time.Time) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var n int64
	for key, row := range k.rows {
		if !row.InProgress && row.CompletedAt != nil && row.CompletedAt.Before(cutoff) {
			delete(k.rows, key)
			n++
		}
	}
	return n, nil
}

// Len reports how many keys are stored.
func (k *Keys) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.rows)
}
