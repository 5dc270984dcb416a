package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/lock"
	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/notify"
	"github.com/unicard/ledger/internal/service"
	"github.com/unicard/ledger/internal/testutil/memstore"
)

var bogota = time.FixedZone("COT", -5*60*60)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Kinds(accountID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, e := range r.events {
		if e.AccountID == accountID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

type fixture struct {
	store    *memstore.Store
	clock    *fakeClock
	notes    *recorder
	limits   *service.LimitService
	ledger   *service.LedgerService
	recharge *service.RechargeService
	query    *service.QueryService
	accounts *service.AccountService
	admin    models.ActorContext
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	clock := &fakeClock{t: time.Date(2026, time.March, 10, 14, 0, 0, 0, bogota)}
	notes := &recorder{}
	limits := service.NewLimitService(store, service.LimitConfig{Location: bogota}, clock.Now)
	ledger := service.NewLedgerService(store, limits, notes, service.LedgerConfig{Location: bogota}, clock.Now)
	recharge := service.NewRechargeService(store, ledger, lock.NewLocal(), notes, service.RechargeConfig{}, clock.Now)

	f := &fixture{
		store:    store,
		clock:    clock,
		notes:    notes,
		limits:   limits,
		ledger:   ledger,
		recharge: recharge,
		query:    service.NewQueryService(store, limits),
		accounts: service.NewAccountService(store),
	}
	admin := f.addAccount(t, "AD-001", 0)
	f.admin = models.ActorContext{ActorID: admin.ID, IsAdmin: true, IPAddress: "10.0.0.1", UserAgent: "test"}
	store.AddAccount(models.Account{
		ID:               uuid.MustParse(domain.SystemAccountID),
		UniID:            domain.SystemUniID,
		Status:           domain.AccountStatusActive,
		Role:             domain.RoleAdmin,
		ReliabilityScore: decimal.NewFromInt(5),
	})
	return f
}

func (f *fixture) addAccount(t *testing.T, uniID string, balance int64) models.Account {
	t.Helper()
	account := models.Account{
		ID:               uuid.New(),
		UniID:            uniID,
		Balance:          balance,
		Status:           domain.AccountStatusActive,
		Role:             domain.RoleUser,
		ReliabilityScore: decimal.RequireFromString("4.5"),
	}
	f.store.AddAccount(account)
	return account
}

func (f *fixture) balance(id uuid.UUID) int64 {
	return f.store.Account(id).Balance
}

func (f *fixture) txByStatus(status string) []models.Transaction {
	var out []models.Transaction
	for _, txn := range f.store.Transactions() {
		if txn.Status == status {
			out = append(out, txn)
		}
	}
	return out
}

func (f *fixture) auditActions(transactionID uuid.UUID) []string {
	var actions []string
	for _, e := range f.store.AuditEntries() {
		if e.TransactionID == transactionID {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

func userActor(id uuid.UUID) models.ActorContext {
	return models.ActorContext{ActorID: id, IPAddress: "10.0.0.2", UserAgent: "test"}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func requireKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "unexpected error: %v", err)
}
