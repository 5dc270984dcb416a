package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
)

func TestLimitStatusCreatesDefaults(t *testing.T) {
	f := newFixture(t)
	user := f.addAccount(t, "US-001", 0)

	status, err := f.limits.Status(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, &models.LimitStatus{
		AccountID:        user.ID,
		DailyLimit:       domain.DefaultDailyLimit,
		DailyRemaining:   domain.DefaultDailyLimit,
		MonthlyLimit:     domain.DefaultMonthlyLimit,
		MonthlyRemaining: domain.DefaultMonthlyLimit,
	}, status)

	_, ok := f.store.LimitRecord(user.ID)
	assert.True(t, ok, "record is created lazily on first access")

	_, err = f.limits.Status(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLimitStatusPersistsReset(t *testing.T) {
	f := newFixture(t)
	user := f.addAccount(t, "US-001", 0)
	now := f.clock.Now()
	f.store.SetLimitRecord(models.LimitRecord{
		AccountID:        user.ID,
		DailyLimit:       500,
		MonthlyLimit:     5000,
		DailyUsed:        400,
		MonthlyUsed:      3000,
		LastResetDaily:   startOfDay(now),
		LastResetMonthly: startOfMonth(now),
	})

	status, err := f.limits.Status(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), status.DailyRemaining)
	assert.Equal(t, int64(2000), status.MonthlyRemaining)

	// Crossing midnight resets the daily window only.
	f.clock.Set(startOfDay(now).Add(24*time.Hour + time.Minute))
	status, err = f.limits.Status(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, status.DailyUsed)
	assert.Equal(t, int64(3000), status.MonthlyUsed)

	rec, _ := f.store.LimitRecord(user.ID)
	assert.Zero(t, rec.DailyUsed)
	assert.True(t, rec.LastResetDaily.Equal(startOfDay(f.clock.Now())))

	// The first of the next month resets both.
	f.clock.Set(startOfMonth(now).AddDate(0, 1, 0).Add(time.Hour))
	status, err = f.limits.Status(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, status.MonthlyUsed)
}

func TestSetLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addAccount(t, "US-001", 5000)
	f.addAccount(t, "AB-123", 0)

	_, err := f.limits.SetLimits(ctx, user.ID, 100, 200, userActor(user.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.limits.SetLimits(ctx, user.ID, 0, 200, f.admin)
	requireKind(t, err, domain.KindValidation)
	_, err = f.limits.SetLimits(ctx, user.ID, 300, 200, f.admin)
	requireKind(t, err, domain.KindValidation)

	status, err := f.limits.SetLimits(ctx, user.ID, 100, 200, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(100), status.DailyLimit)
	assert.Equal(t, int64(200), status.MonthlyLimit)

	_, err = f.ledger.Transfer(ctx, user.ID, "AB-123", 101, "", userActor(user.ID))
	require.ErrorIs(t, err, domain.ErrLimitExceeded)
	_, err = f.ledger.Transfer(ctx, user.ID, "AB-123", 100, "", userActor(user.ID))
	require.NoError(t, err)
}

func TestSuspendAndUnsuspend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addAccount(t, "US-001", 500)
	f.addAccount(t, "AB-123", 0)

	_, err := f.limits.Suspend(ctx, user.ID, "fraud", userActor(user.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)
	_, err = f.limits.Suspend(ctx, user.ID, "  ", f.admin)
	requireKind(t, err, domain.KindValidation)

	status, err := f.limits.Suspend(ctx, user.ID, "fraud", f.admin)
	require.NoError(t, err)
	assert.True(t, status.IsSuspended)
	assert.Equal(t, "fraud", status.SuspensionReason)

	_, err = f.ledger.Transfer(ctx, user.ID, "AB-123", 10, "", userActor(user.ID))
	require.ErrorIs(t, err, domain.ErrAccountSuspended)

	status, err = f.limits.Unsuspend(ctx, user.ID, f.admin)
	require.NoError(t, err)
	assert.False(t, status.IsSuspended)
	assert.Empty(t, status.SuspensionReason)

	_, err = f.ledger.Transfer(ctx, user.ID, "AB-123", 10, "", userActor(user.ID))
	require.NoError(t, err)
}
