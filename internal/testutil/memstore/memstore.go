// Package memstore is an in-memory service.Store for tests. Transactions are
// fully serialized and roll back by discarding a cloned state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/service"
)

type state struct {
	seq          int64
	accounts     map[uuid.UUID]models.Account
	opening      map[uuid.UUID]int64
	transactions map[uuid.UUID]models.Transaction
	txSeq        map[uuid.UUID]int64
	limits       map[uuid.UUID]models.LimitRecord
	audit        []models.AuditEntry
	recharges    map[uuid.UUID]models.RechargeRequest
	rechargeSeq  map[uuid.UUID]int64
}

func newState() *state {
	return &state{
		accounts:     make(map[uuid.UUID]models.Account),
		opening:      make(map[uuid.UUID]int64),
		transactions: make(map[uuid.UUID]models.Transaction),
		txSeq:        make(map[uuid.UUID]int64),
		limits:       make(map[uuid.UUID]models.LimitRecord),
		recharges:    make(map[uuid.UUID]models.RechargeRequest),
		rechargeSeq:  make(map[uuid.UUID]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.opening {
		c.opening[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.txSeq {
		c.txSeq[k] = v
	}
	for k, v := range s.limits {
		c.limits[k] = v
	}
	c.audit = append([]models.AuditEntry(nil), s.audit...)
	for k, v := range s.recharges {
		c.recharges[k] = v
	}
	for k, v := range s.rechargeSeq {
		c.rechargeSeq[k] = v
	}
	return c
}

// Store implements service.Store.
type Store struct {
	mu        sync.Mutex
	state     *state
	conflicts     int
	refCollisions int
	rejectedRefs  []string
	commits       int
}

var _ service.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) Reader() service.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &view{st: s.state.clone()}
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := &txView{view: view{st: s.state.clone()}, parent: s}
	if err := fn(work); err != nil {
		return err
	}
	s.state = work.st
	s.commits++
	return nil
}

// InjectConflicts makes the next n conditional balance writes report a lost race.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// InjectRefCollisions makes the next n transaction inserts find their reference
// already claimed by a concurrent unit, as the unique index would report it.
func (s *Store) InjectRefCollisions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refCollisions = n
}

// RejectedRefs lists the references refused by injected collisions, oldest first.
func (s *Store) RejectedRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rejectedRefs...)
}

func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Store) AddAccount(a models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.state.accounts[a.ID] = a
	s.state.opening[a.ID] = a.Balance
}

// SetBalance edits a balance outside the ledger.
func (s *Store) SetBalance(id uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.state.accounts[id]
	a.Balance = balance
	s.state.accounts[id] = a
}

func (s *Store) Account(id uuid.UUID) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.accounts[id]
}

func (s *Store) SetLimitRecord(rec models.LimitRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.limits[rec.AccountID] = rec
}

func (s *Store) LimitRecord(accountID uuid.UUID) (models.LimitRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.limits[accountID]
	return rec, ok
}

// Transactions returns every stored transaction in insertion order.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, 0, len(s.state.transactions))
	for _, t := range s.state.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.state.txSeq[out[i].ID] < s.state.txSeq[out[j].ID]
	})
	return out
}

func (s *Store) AuditEntries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry(nil), s.state.audit...)
}

// view reads from one state snapshot.
type view struct {
	st *state
}

func (v *view) FindAccountByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := v.st.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (v *view) FindAccountByUniID(_ context.Context, uniID string) (*models.Account, error) {
	for _, a := range v.st.accounts {
		if a.UniID == uniID {
			return &a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (v *view) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, ok := v.st.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &t, nil
}

func (v *view) TransactionRefExists(_ context.Context, ref string) (bool, error) {
	for _, t := range v.st.transactions {
		if t.TransactionRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) ListTransactionsForAccount(_ context.Context, accountID uuid.UUID, filter models.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range v.st.transactions {
		if !t.Involves(accountID) {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return v.st.txSeq[out[i].ID] > v.st.txSeq[out[j].ID]
	})
	return paginate(out, limit, offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func (v *view) SummarizeAccount(_ context.Context, accountID uuid.UUID) (*models.AccountSummary, error) {
	a, ok := v.st.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	sum := &models.AccountSummary{AccountID: accountID, Balance: a.Balance}
	for _, t := range v.st.transactions {
		if t.Status != domain.TxStatusCompleted || !t.Involves(accountID) {
			continue
		}
		sum.Completed++
		switch {
		case t.Type == domain.TxTypeTransfer && t.FromAccountID == accountID:
			sum.TotalSent += t.Points
		case t.Type == domain.TxTypeTransfer && t.ToAccountID == accountID:
			sum.TotalReceived += t.Points
		case t.Type == domain.TxTypeBonus && t.ToAccountID == accountID:
			sum.TotalBonus += t.Points
		case t.Type == domain.TxTypeRefund && t.ToAccountID == accountID:
			sum.TotalRefunded += t.Points
		case t.Type == domain.TxTypePenalty && t.FromAccountID == accountID:
			sum.TotalPenalties += t.Points
		}
	}
	return sum, nil
}

func (v *view) ListAuditEntries(_ context.Context, transactionID uuid.UUID) ([]models.AuditEntry, error) {
	out := []models.AuditEntry{}
	for _, e := range v.st.audit {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) GetRechargeRequest(_ context.Context, id uuid.UUID) (*models.RechargeRequest, error) {
	r, ok := v.st.recharges[id]
	if !ok {
		return nil, domain.ErrRechargeNotFound
	}
	return &r, nil
}

func (v *view) RechargeRefExists(_ context.Context, ref string) (bool, error) {
	for _, r := range v.st.recharges {
		if r.RequestRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) ListRechargeRequests(_ context.Context, accountID *uuid.UUID, status string, limit, offset int) ([]models.RechargeRequest, error) {
	var out []models.RechargeRequest
	for _, r := range v.st.recharges {
		if accountID != nil && r.AccountID != *accountID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return v.st.rechargeSeq[out[i].ID] > v.st.rechargeSeq[out[j].ID]
	})
	return paginate(out, limit, offset), nil
}

func (v *view) LedgerTotals(_ context.Context) (*models.LedgerTotals, error) {
	systemID := uuid.MustParse(domain.SystemAccountID)
	totals := &models.LedgerTotals{}
	movement := make(map[uuid.UUID]int64)
	for _, t := range v.st.transactions {
		if t.Status == domain.TxStatusCompleted {
			movement[t.ToAccountID] += t.Points
			movement[t.FromAccountID] -= t.Points
		}
	}
	for id, a := range v.st.accounts {
		if id == systemID {
			continue
		}
		totals.AccountBalanceSum += a.Balance
		totals.OpeningBalanceSum += v.st.opening[id]
		if a.Balance < 0 {
			totals.NegativeBalances++
		}
		if a.Balance != v.st.opening[id]+movement[id] {
			totals.UnbalancedAccounts++
		}
	}
	for _, t := range v.st.transactions {
		if t.Status != domain.TxStatusCompleted {
			continue
		}
		snap := t.BalanceSnapshots
		debitOK := snap.SenderAfter == snap.SenderBefore-t.Points
		creditOK := snap.ReceiverAfter == snap.ReceiverBefore+t.Points
		switch t.Type {
		case domain.TxTypeBonus:
			totals.BonusIssued += t.Points
			debitOK = true
		case domain.TxTypePenalty:
			totals.PenaltiesCollected += t.Points
			creditOK = true
		}
		if !debitOK || !creditOK {
			totals.SnapshotViolations++
		}
	}
	return totals, nil
}

// txView mutates a private clone that RunInTx commits on success.
type txView struct {
	view
	parent *Store
}

func (t *txView) LockAccounts(_ context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	out := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.st.accounts[id]; ok {
			out[id] = &a
		}
	}
	return out, nil
}

func (t *txView) UpdateAccountBalance(_ context.Context, id uuid.UUID, expected, next int64) error {
	if t.parent.conflicts > 0 {
		t.parent.conflicts--
		return domain.ErrPersistenceConflict
	}
	a, ok := t.st.accounts[id]
	if !ok || a.Balance != expected {
		return domain.ErrPersistenceConflict
	}
	if next < 0 {
		return fmt.Errorf("balance of %s would become negative", a.UniID)
	}
	a.Balance = next
	t.st.accounts[id] = a
	return nil
}

func (t *txView) GetLimitRecordForUpdate(_ context.Context, accountID uuid.UUID, defaults models.LimitRecord) (*models.LimitRecord, error) {
	rec, ok := t.st.limits[accountID]
	if !ok {
		rec = defaults
		t.st.limits[accountID] = rec
	}
	return &rec, nil
}

func (t *txView) SaveLimitRecord(_ context.Context, rec *models.LimitRecord) error {
	t.st.limits[rec.AccountID] = *rec
	return nil
}

func (t *txView) InsertTransaction(_ context.Context, txn *models.Transaction) error {
	if _, exists := t.st.transactions[txn.ID]; exists {
		return fmt.Errorf("transaction %s already exists", txn.ID)
	}
	if t.parent.refCollisions > 0 {
		t.parent.refCollisions--
		t.parent.rejectedRefs = append(t.parent.rejectedRefs, txn.TransactionRef)
		return fmt.Errorf("%w: %w", domain.ErrPersistenceConflict, domain.ErrDuplicateReference)
	}
	for _, other := range t.st.transactions {
		if other.TransactionRef == txn.TransactionRef {
			return fmt.Errorf("%w: %w", domain.ErrPersistenceConflict, domain.ErrDuplicateReference)
		}
	}
	if txn.RefundOf != nil && txn.Status != domain.TxStatusFailed {
		for _, other := range t.st.transactions {
			if other.RefundOf != nil && *other.RefundOf == *txn.RefundOf && other.Status != domain.TxStatusFailed {
				return domain.ErrAlreadyRefunded
			}
		}
	}
	t.st.seq++
	t.st.transactions[txn.ID] = *txn
	t.st.txSeq[txn.ID] = t.st.seq
	return nil
}

func (t *txView) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *txView) UpdateTransactionStatus(_ context.Context, id uuid.UUID, status string, at time.Time) (int64, error) {
	txn, ok := t.st.transactions[id]
	if !ok {
		return 0, nil
	}
	txn.Status = status
	switch status {
	case domain.TxStatusCompleted:
		txn.ProcessedAt = &at
	case domain.TxStatusFailed:
		txn.FailedAt = &at
	}
	t.st.transactions[id] = txn
	return 1, nil
}

func (t *txView) FindRefundOf(_ context.Context, originalID uuid.UUID) (*models.Transaction, error) {
	for _, other := range t.st.transactions {
		if other.RefundOf != nil && *other.RefundOf == originalID && other.Status != domain.TxStatusFailed {
			return &other, nil
		}
	}
	return nil, nil
}

func (t *txView) InsertAuditEntry(_ context.Context, e *models.AuditEntry) error {
	t.st.audit = append(t.st.audit, *e)
	return nil
}

func (t *txView) InsertRechargeRequest(_ context.Context, r *models.RechargeRequest) error {
	if _, exists := t.st.recharges[r.ID]; exists {
		return fmt.Errorf("recharge request %s already exists", r.ID)
	}
	t.st.seq++
	t.st.recharges[r.ID] = *r
	t.st.rechargeSeq[r.ID] = t.st.seq
	return nil
}

func (t *txView) GetRechargeRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.RechargeRequest, error) {
	return t.GetRechargeRequest(ctx, id)
}

func (t *txView) UpdateRechargeRequest(_ context.Context, r *models.RechargeRequest) (int64, error) {
	current, ok := t.st.recharges[r.ID]
	if !ok || current.Status != domain.RechargeStatusPending {
		return 0, nil
	}
	t.st.recharges[r.ID] = *r
	return 1, nil
}
