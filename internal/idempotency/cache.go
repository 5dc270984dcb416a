package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "unicard:idempotency:"

// replayCache keeps settled responses in Redis so repeats skip Postgres.
// A nil client turns every call into a miss.
type replayCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func (c replayCache) get(ctx context.Context, key string) (*Replay, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("Replay cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var rp Replay
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, false
	}
	rp.Source = SourceRedis
	return &rp, true
}

func (c replayCache) put(ctx context.Context, rp *Replay) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(rp)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+rp.Key, raw, c.ttl).Err(); err != nil {
		zap.L().Warn("Replay cache write failed", zap.String("key", rp.Key), zap.Error(err))
	}
}
