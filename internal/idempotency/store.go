// Package idempotency records the first response to each client key so
// repeated money movements are answered from storage instead of re-executed.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/unicard/ledger/internal/repository"
)

var (
	ErrUnknownKey = errors.New("idempotency key not found")
	ErrKeyReused  = errors.New("idempotency key reused with a different request")
	ErrPending    = errors.New("idempotency key still processing")
)

// Where a replay was read from, echoed in the X-Idempotent-Replay header.
const (
	SourcePostgres = "postgres"
	SourceRedis    = "redis"
)

// Keys is the durable side of the store; *repository.Queries implements it.
type Keys interface {
	GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error)
	ReleaseIdempotencyKey(ctx context.Context, key, requestHash string) error
	PurgeIdempotencyKeys(ctx context.Context, cutoff time.Time) (int64, error)
}

// Claim identifies one request made under an idempotency key.
type Claim struct {
	Key    string
	Hash   string
	Method string
	Path   string
}

// Replay is the settled response for a claim.
type Replay struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	Source      string `json:"-"`
}

// Store keeps claims in Postgres and settled replays in an optional Redis cache.
type Store struct {
	keys  Keys
	cache replayCache
	ttl   time.Duration
	poll  time.Duration
}

func NewStore(rdb redis.Cmdable, keys Keys, ttl time.Duration) *Store {
	return &Store{
		keys:  keys,
		cache: replayCache{rdb: rdb, ttl: ttl},
		ttl:   ttl,
		poll:  50 * time.Millisecond,
	}
}

// Replay returns the settled response for c. A cached entry still has its hash checked.
func (s *Store) Replay(ctx context.Context, c Claim) (*Replay, error) {
	if rp, ok := s.cache.get(ctx, c.Key); ok {
		if rp.Hash != c.Hash {
			return nil, ErrKeyReused
		}
		return rp, nil
	}

	row, err := s.keys.GetIdempotencyKey(ctx, c.Key)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrUnknownKey
	case err != nil:
		return nil, fmt.Errorf("read claim %s: %w", c.Key, err)
	case row.RequestHash != c.Hash:
		return nil, ErrKeyReused
	case row.InProgress:
		return nil, ErrPending
	}

	rp := replayFromRow(row)
	s.cache.put(ctx, rp)
	return rp, nil
}

// Claim takes the key for c. It reports false when another request already holds it.
func (s *Store) Claim(ctx context.Context, c Claim) (bool, error) {
	_, err := s.keys.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{
		IdempotencyKey: c.Key,
		RequestHash:    c.Hash,
		Method:         c.Method,
		Path:           c.Path,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("claim %s: %w", c.Key, err)
	}
}

// Settle stores the handler's response against a held claim.
func (s *Store) Settle(ctx context.Context, c Claim, status int, body []byte, contentType string) (*Replay, error) {
	row, err := s.keys.FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{
		IdempotencyKey: c.Key,
		RequestHash:    c.Hash,
		ResponseStatus: int32(status),
		ResponseBody:   body,
		ContentType:    contentType,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownKey
	}
	if err != nil {
		return nil, fmt.Errorf("settle claim %s: %w", c.Key, err)
	}
	rp := replayFromRow(row)
	s.cache.put(ctx, rp)
	return rp, nil
}

// Abandon drops a held claim so the client can retry with the same key.
func (s *Store) Abandon(ctx context.Context, c Claim) error {
	if err := s.keys.ReleaseIdempotencyKey(ctx, c.Key, c.Hash); err != nil {
		return fmt.Errorf("abandon claim %s: %w", c.Key, err)
	}
	return nil
}

// Await polls until the request holding c settles, the claim disappears, or ctx ends.
func (s *Store) Await(ctx context.Context, c Claim) (*Replay, error) {
	for {
		rp, err := s.Replay(ctx, c)
		if !errors.Is(err, ErrPending) {
			return rp, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

// Purge removes settled claims older than the ttl.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.keys.PurgeIdempotencyKeys(ctx, now.Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return n, nil
}

func replayFromRow(row repository.IdempotencyKey) *Replay {
	return &Replay{
		Key:         row.IdempotencyKey,
		Hash:        row.RequestHash,
		Status:      int(row.ResponseStatus),
		Body:        row.ResponseBody,
		ContentType: row.ContentType,
		Source:      SourcePostgres,
	}
}
