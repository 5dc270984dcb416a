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

func TestHistoryNewestFirstWithFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addAccount(t, "US-001", 1000)
	f.addAccount(t, "AB-123", 0)
	stranger := f.addAccount(t, "ZZ-999", 0)

	first, err := f.ledger.Transfer(ctx, user.ID, "AB-123", 10, "first", userActor(user.ID))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	bonus, err := f.ledger.Bonus(ctx, user.ID, 50, "", "", f.admin)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	last, err := f.ledger.Transfer(ctx, user.ID, "AB-123", 20, "last", userActor(user.ID))
	require.NoError(t, err)

	history, err := f.query.History(ctx, user.ID, models.TransactionFilter{}, models.Page{}, userActor(user.ID))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []uuid.UUID{last.ID, bonus.ID, first.ID}, []uuid.UUID{history[0].ID, history[1].ID, history[2].ID})

	transfers, err := f.query.History(ctx, user.ID, models.TransactionFilter{Type: "TRANSFER"}, models.Page{}, userActor(user.ID))
	require.NoError(t, err)
	assert.Len(t, transfers, 2)

	page2, err := f.query.History(ctx, user.ID, models.TransactionFilter{}, models.Page{Number: 2, Size: 2}, userActor(user.ID))
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, first.ID, page2[0].ID)

	_, err = f.query.History(ctx, user.ID, models.TransactionFilter{Type: "gift"}, models.Page{}, userActor(user.ID))
	requireKind(t, err, domain.KindValidation)
	_, err = f.query.History(ctx, user.ID, models.TransactionFilter{}, models.Page{}, userActor(stranger.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	adminView, err := f.query.History(ctx, user.ID, models.TransactionFilter{Status: domain.TxStatusCompleted}, models.Page{}, f.admin)
	require.NoError(t, err)
	assert.Len(t, adminView, 3)
}

func TestGetByIDAccessControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addAccount(t, "SN-100", 100)
	receiver := f.addAccount(t, "AB-123", 0)
	stranger := f.addAccount(t, "ZZ-999", 0)

	txn, err := f.ledger.Transfer(ctx, sender.ID, "AB-123", 10, "", userActor(sender.ID))
	require.NoError(t, err)

	for _, actor := range []models.ActorContext{userActor(sender.ID), userActor(receiver.ID), f.admin} {
		got, err := f.query.GetByID(ctx, txn.ID, actor)
		require.NoError(t, err)
		assert.Equal(t, txn.ID, got.ID)
	}

	_, err = f.query.GetByID(ctx, txn.ID, userActor(stranger.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)
	_, err = f.query.GetByID(ctx, uuid.New(), f.admin)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestAuditTrailAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.addAccount(t, "SN-100", 100)
	f.addAccount(t, "AB-123", 0)

	txn, err := f.ledger.Transfer(ctx, sender.ID, "AB-123", 10, "", userActor(sender.ID))
	require.NoError(t, err)

	_, err = f.query.AuditTrail(ctx, txn.ID, userActor(sender.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	entries, err := f.query.AuditTrail(ctx, txn.ID, f.admin)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditCreated, entries[0].Action)
	assert.Equal(t, domain.AuditProcessed, entries[1].Action)
	require.NotNil(t, entries[1].PerformedBy)
	assert.Equal(t, sender.ID, *entries[1].PerformedBy)
	assert.Equal(t, "10.0.0.2", entries[1].IPAddress)
}

func TestSummaryTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addAccount(t, "US-001", 500)
	peer := f.addAccount(t, "AB-123", 500)

	_, err := f.ledger.Transfer(ctx, user.ID, "AB-123", 100, "", userActor(user.ID))
	require.NoError(t, err)
	incoming, err := f.ledger.Transfer(ctx, peer.ID, "US-001", 40, "", userActor(peer.ID))
	require.NoError(t, err)
	_, err = f.ledger.Bonus(ctx, user.ID, 25, "", "", f.admin)
	require.NoError(t, err)
	_, err = f.ledger.Refund(ctx, incoming.ID, "", f.admin)
	require.NoError(t, err)
	_, err = f.ledger.Penalty(ctx, user.ID, 5, "late cancel", f.admin)
	require.NoError(t, err)

	summary, err := f.query.Summary(ctx, user.ID, userActor(user.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(500-100+40+25-40-5), summary.Balance)
	assert.Equal(t, int64(100), summary.TotalSent)
	assert.Equal(t, int64(40), summary.TotalReceived)
	assert.Equal(t, int64(25), summary.TotalBonus)
	assert.Equal(t, int64(0), summary.TotalRefunded)
	assert.Equal(t, int64(5), summary.TotalPenalties)
	assert.Equal(t, 5, summary.Completed)

	peerSummary, err := f.query.Summary(ctx, peer.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(40), peerSummary.TotalRefunded)

	_, err = f.query.Summary(ctx, user.ID, userActor(peer.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestLimitStatusThroughQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addAccount(t, "US-001", 500)
	other := f.addAccount(t, "AB-123", 0)

	_, err := f.ledger.Transfer(ctx, user.ID, "AB-123", 120, "", userActor(user.ID))
	require.NoError(t, err)

	status, err := f.query.LimitStatus(ctx, user.ID, userActor(user.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(120), status.DailyUsed)
	assert.Equal(t, int64(880), status.DailyRemaining)

	_, err = f.query.LimitStatus(ctx, user.ID, userActor(other.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestAccountLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addAccount(t, "US-001", 75)
	other := f.addAccount(t, "AB-123", 0)

	acc, err := f.accounts.GetBalance(ctx, user.ID, userActor(user.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(75), acc.Balance)
	_, err = f.accounts.GetBalance(ctx, user.ID, userActor(other.ID))
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	recipient, err := f.accounts.LookupRecipient(ctx, " ab-123 ")
	require.NoError(t, err)
	assert.Equal(t, other.ID, recipient.ID)
	assert.Zero(t, recipient.Balance, "balance is not exposed")

	_, err = f.accounts.LookupRecipient(ctx, domain.SystemUniID)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = f.accounts.LookupRecipient(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrInvalidUniID)
}
