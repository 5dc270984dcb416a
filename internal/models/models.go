package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the slice of the user directory the ledger depends on.
type Account struct {
	ID               uuid.UUID       `json:"id"`
	UniID            string          `json:"uni_id"`
	Balance          int64           `json:"balance"`
	Status           string          `json:"status"`
	Role             string          `json:"role"`
	ReliabilityScore decimal.Decimal `json:"reliability_score"`
	CreatedAt        time.Time       `json:"created_at"`
}

type BalanceSnapshots struct {
	SenderBefore   int64 `json:"sender_before"`
	SenderAfter    int64 `json:"sender_after"`
	ReceiverBefore int64 `json:"receiver_before"`
	ReceiverAfter  int64 `json:"receiver_after"`
}

// TransactionMetadata replaces free-form metadata bags with fixed, auditable fields.
type TransactionMetadata struct {
	RiskScore             int    `json:"risk_score"`
	DailyTransactionCount int    `json:"daily_transaction_count"`
	TotalDailyAmount      int64  `json:"total_daily_amount"`
	SourceRef             string `json:"source_ref,omitempty"`
	FailureReason         string `json:"failure_reason,omitempty"`
}

type Transaction struct {
	ID               uuid.UUID           `json:"id"`
	TransactionRef   string              `json:"transaction_ref"`
	FromAccountID    uuid.UUID           `json:"from_account_id"`
	FromUniID        string              `json:"from_uni_id"`
	ToAccountID      uuid.UUID           `json:"to_account_id"`
	ToUniID          string              `json:"to_uni_id"`
	Points           int64               `json:"points"`
	Status           string              `json:"status"`
	Type             string              `json:"type"`
	Description      string              `json:"description"`
	BalanceSnapshots BalanceSnapshots    `json:"balance_snapshots"`
	RiskScore        int                 `json:"risk_score"`
	Metadata         TransactionMetadata `json:"metadata"`
	RefundOf         *uuid.UUID          `json:"refund_of,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	ProcessedAt      *time.Time          `json:"processed_at,omitempty"`
	FailedAt         *time.Time          `json:"failed_at,omitempty"`
}

// Involves reports whether accountID is the sender or receiver.
func (t *Transaction) Involves(accountID uuid.UUID) bool {
	return t.FromAccountID == accountID || t.ToAccountID == accountID
}

type LimitRecord struct {
	AccountID             uuid.UUID `json:"account_id"`
	DailyLimit            int64     `json:"daily_limit"`
	MonthlyLimit          int64     `json:"monthly_limit"`
	DailyUsed             int64     `json:"daily_used"`
	MonthlyUsed           int64     `json:"monthly_used"`
	DailyTransactionCount int       `json:"daily_transaction_count"`
	LastResetDaily        time.Time `json:"last_reset_daily"`
	LastResetMonthly      time.Time `json:"last_reset_monthly"`
	IsSuspended           bool      `json:"is_suspended"`
	SuspensionReason      string    `json:"suspension_reason,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type LimitStatus struct {
	AccountID        uuid.UUID `json:"account_id"`
	DailyLimit       int64     `json:"daily_limit"`
	DailyUsed        int64     `json:"daily_used"`
	DailyRemaining   int64     `json:"daily_remaining"`
	MonthlyLimit     int64     `json:"monthly_limit"`
	MonthlyUsed      int64     `json:"monthly_used"`
	MonthlyRemaining int64     `json:"monthly_remaining"`
	IsSuspended      bool      `json:"is_suspended"`
	SuspensionReason string    `json:"suspension_reason,omitempty"`
}

type AuditEntry struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Action        string     `json:"action"`
	PerformedBy   *uuid.UUID `json:"performed_by,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	Details       string     `json:"details"`
	RiskScore     int        `json:"risk_score"`
	CreatedAt     time.Time  `json:"created_at"`
}

type RechargeRequest struct {
	ID                uuid.UUID       `json:"id"`
	RequestRef        string          `json:"request_ref"`
	AccountID         uuid.UUID       `json:"account_id"`
	PointsRequested   int64           `json:"points_requested"`
	AmountDue         decimal.Decimal `json:"amount_due"`
	Currency          string          `json:"currency"`
	ProofOfPaymentRef string          `json:"proof_of_payment_ref"`
	Status            string          `json:"status"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	AdminNotes        string          `json:"admin_notes,omitempty"`
	ProcessedBy       *uuid.UUID      `json:"processed_by,omitempty"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	TransactionID     *uuid.UUID      `json:"transaction_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ActorContext identifies who triggered a mutation; the ledger records it, never authenticates it.
type ActorContext struct {
	ActorID   uuid.UUID
	IsAdmin   bool
	IPAddress string
	UserAgent string
}

// ActorPtr returns the actor id for audit rows, nil for system-initiated calls.
func (a ActorContext) ActorPtr() *uuid.UUID {
	if a.ActorID == uuid.Nil {
		return nil
	}
	id := a.ActorID
	return &id
}

type TransactionFilter struct {
	Type   string
	Status string
}

type Page struct {
	Number int
	Size   int
}

// Normalize clamps page parameters to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

type AccountSummary struct {
	AccountID      uuid.UUID `json:"account_id"`
	Balance        int64     `json:"balance"`
	TotalSent      int64     `json:"total_sent"`
	TotalReceived  int64     `json:"total_received"`
	TotalBonus     int64     `json:"total_bonus"`
	TotalRefunded  int64     `json:"total_refunded"`
	TotalPenalties int64     `json:"total_penalties"`
	Completed      int       `json:"completed_transactions"`
}

// LedgerTotals aggregates completed movements for reconciliation.
type LedgerTotals struct {
	AccountBalanceSum  int64
	OpeningBalanceSum  int64
	BonusIssued        int64
	PenaltiesCollected int64
	SnapshotViolations int64
	NegativeBalances   int64
	// UnbalancedAccounts counts accounts whose balance differs from their opening
	// balance plus completed credits minus completed debits.
	UnbalancedAccounts int64
}

// Drift is the balance not explained by opening balances, bonuses and penalties. It is zero on a healthy ledger.
func (t *LedgerTotals) Drift() int64 {
	return t.AccountBalanceSum - t.OpeningBalanceSum - t.BonusIssued + t.PenaltiesCollected
}
