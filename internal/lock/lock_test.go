package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/unicard/ledger/internal/domain"
)

func TestLocalLockIsExclusivePerKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "recharge:1", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "recharge:1", time.Second)
	require.ErrorIs(t, err, domain.ErrLockNotObtained)

	other, err := l.Acquire(ctx, "recharge:2", time.Second)
	require.NoError(t, err)
	other()

	release()
	again, err := l.Acquire(ctx, "recharge:1", time.Second)
	require.NoError(t, err)
	again()
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client)
	ctx := context.Background()
	key := "recharge:" + uuid.NewString()

	release, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key, 5*time.Second)
	require.ErrorIs(t, err, domain.ErrLockNotObtained)

	release()
	again, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	again()
}
