package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/notify"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

const DefaultRiskThreshold = 70

var systemAccountID = uuid.MustParse(domain.SystemAccountID)

// systemAccount is the pseudo-party on the far side of bonuses and penalties. It holds no balance.
func systemAccount() *models.Account {
	return &models.Account{
		ID:               systemAccountID,
		UniID:            domain.SystemUniID,
		Status:           domain.AccountStatusActive,
		Role:             domain.RoleAdmin,
		ReliabilityScore: decimal.NewFromInt(5),
	}
}

type LedgerConfig struct {
	MaxRetries    int
	RiskThreshold int
	Location      *time.Location
}

// LedgerService is the only component that moves points between balances.
// Every movement runs as one store transaction covering balances, limits, the
// transaction row and its audit trail.
type LedgerService struct {
	store         Store
	limits        *LimitService
	audit         *AuditService
	notifier      notify.Notifier
	now           Clock
	loc           *time.Location
	maxRetries    int
	riskThreshold int
}

func NewLedgerService(store Store, limits *LimitService, notifier notify.Notifier, cfg LedgerConfig, now Clock) *LedgerService {
	if now == nil {
		now = time.Now
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RiskThreshold <= 0 {
		cfg.RiskThreshold = DefaultRiskThreshold
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &LedgerService{
		store:         store,
		limits:        limits,
		audit:         NewAuditService(now),
		notifier:      notifier,
		now:           now,
		loc:           cfg.Location,
		maxRetries:    cfg.MaxRetries,
		riskThreshold: cfg.RiskThreshold,
	}
}

// movement describes one balance-affecting unit. The zero-side of bonuses and
// penalties is the system account, which is neither locked nor written.
type movement struct {
	debit          bool
	credit         bool
	reserveLimits  bool
	insufficient   error
	riskOnReceiver bool
	// before runs after the accounts are locked and before any write.
	before func(ctx context.Context, tx Tx) error
	// after runs once the transaction is completed, still inside the unit.
	after func(ctx context.Context, tx Tx, txn *models.Transaction) error
}

func normalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > domain.MaxDescriptionLength {
		return "", domain.Validationf("description must be at most %d characters", domain.MaxDescriptionLength)
	}
	return description, nil
}

// prepare fixes the identity of a movement once, before any retry.
func (s *LedgerService) prepare(ctx context.Context, txType string, from, to *models.Account, points int64, description string) (*models.Transaction, error) {
	now := s.now()
	ref, err := NewTransactionRef(ctx, s.store.Reader(), now)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		ID:             uuid.New(),
		TransactionRef: ref,
		FromAccountID:  from.ID,
		FromUniID:      from.UniID,
		ToAccountID:    to.ID,
		ToUniID:        to.UniID,
		Points:         points,
		Status:         domain.TxStatusPending,
		Type:           txType,
		Description:    description,
		CreatedAt:      now,
	}, nil
}

// Transfer moves points from an account to the account holding toUniID.
func (s *LedgerService) Transfer(ctx context.Context, fromAccountID uuid.UUID, toUniID string, points int64, description string, actor models.ActorContext) (*models.Transaction, error) {
	if !domain.ValidPoints(points) {
		return nil, domain.ErrInvalidPoints
	}
	uniID, ok := domain.NormalizeUniID(toUniID)
	if !ok {
		return nil, domain.ErrInvalidUniID
	}
	description, err := normalizeDescription(description)
	if err != nil {
		return nil, err
	}

	reader := s.store.Reader()
	sender, err := reader.FindAccountByID(ctx, fromAccountID)
	if err != nil {
		return nil, err
	}
	receiver, err := reader.FindAccountByUniID(ctx, uniID)
	if err != nil {
		return nil, err
	}
	if sender.ID == receiver.ID {
		return nil, domain.ErrSelfTransferRejected
	}
	if sender.ID == systemAccountID || receiver.ID == systemAccountID {
		return nil, domain.Validationf("the system account cannot take part in transfers")
	}
	if description == "" {
		description = fmt.Sprintf("Transfer to %s", receiver.UniID)
	}

	base, err := s.prepare(ctx, domain.TxTypeTransfer, sender, receiver, points, description)
	if err != nil {
		return nil, err
	}
	txn, err := s.run(ctx, base, actor, movement{
		debit:         true,
		credit:        true,
		reserveLimits: true,
		insufficient:  domain.ErrInsufficientFunds,
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, s.event(txn, txn.FromAccountID, domain.NotifyTransferSent,
		fmt.Sprintf("You sent %d points to %s", txn.Points, txn.ToUniID)))
	s.notifier.Notify(ctx, s.event(txn, txn.ToAccountID, domain.NotifyTransferReceived,
		fmt.Sprintf("You received %d points from %s", txn.Points, txn.FromUniID)))
	return txn, nil
}

// Refund returns a completed transfer's points from its receiver to its sender
// as a new refund transaction. The original row is never modified.
func (s *LedgerService) Refund(ctx context.Context, transactionID uuid.UUID, reason string, actor models.ActorContext) (*models.Transaction, error) {
	reason, err := normalizeDescription(reason)
	if err != nil {
		return nil, err
	}

	reader := s.store.Reader()
	original, err := reader.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && actor.ActorID != original.ToAccountID {
		return nil, domain.ErrAccessDenied
	}
	if original.Type != domain.TxTypeTransfer || original.Status != domain.TxStatusCompleted {
		return nil, fmt.Errorf("%w: %s transaction is %s", domain.ErrNotRefundable, original.Type, original.Status)
	}

	payer, err := reader.FindAccountByID(ctx, original.ToAccountID)
	if err != nil {
		return nil, err
	}
	payee, err := reader.FindAccountByID(ctx, original.FromAccountID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = fmt.Sprintf("Refund of %s", original.TransactionRef)
	}

	base, err := s.prepare(ctx, domain.TxTypeRefund, payer, payee, original.Points, reason)
	if err != nil {
		return nil, err
	}
	originalID := original.ID
	base.RefundOf = &originalID
	base.Metadata.SourceRef = original.TransactionRef

	txn, err := s.run(ctx, base, actor, movement{
		debit:        true,
		credit:       true,
		insufficient: domain.ErrInsufficientForRefund,
		before: func(ctx context.Context, tx Tx) error {
			locked, err := tx.GetTransactionForUpdate(ctx, originalID)
			if err != nil {
				return err
			}
			if locked.Status != domain.TxStatusCompleted {
				return fmt.Errorf("%w: transaction is %s", domain.ErrNotRefundable, locked.Status)
			}
			existing, err := tx.FindRefundOf(ctx, originalID)
			if err != nil {
				return fmt.Errorf("find refund: %w", err)
			}
			if existing != nil {
				return domain.ErrAlreadyRefunded
			}
			return nil
		},
		after: func(ctx context.Context, tx Tx, txn *models.Transaction) error {
			details := fmt.Sprintf("refunded by %s: %s", txn.TransactionRef, txn.Description)
			return s.audit.Write(ctx, tx, originalID, actor, domain.AuditRefunded, details, txn.RiskScore)
		},
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, s.event(txn, txn.FromAccountID, domain.NotifyRefundIssued,
		fmt.Sprintf("%d points were returned to %s", txn.Points, txn.ToUniID)))
	s.notifier.Notify(ctx, s.event(txn, txn.ToAccountID, domain.NotifyRefundReceived,
		fmt.Sprintf("You were refunded %d points by %s", txn.Points, txn.FromUniID)))
	return txn, nil
}

// Bonus credits points from the system account with no matching debit.
func (s *LedgerService) Bonus(ctx context.Context, toAccountID uuid.UUID, points int64, sourceRef, description string, actor models.ActorContext) (*models.Transaction, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	receiver, err := s.store.Reader().FindAccountByID(ctx, toAccountID)
	if err != nil {
		return nil, err
	}
	base, err := s.prepareBonus(ctx, receiver, points, sourceRef, description)
	if err != nil {
		return nil, err
	}
	txn, err := s.run(ctx, base, actor, bonusMovement())
	if err != nil {
		return nil, err
	}
	s.notifyBonus(ctx, txn)
	return txn, nil
}

func (s *LedgerService) prepareBonus(ctx context.Context, receiver *models.Account, points int64, sourceRef, description string) (*models.Transaction, error) {
	if !domain.ValidPoints(points) {
		return nil, domain.ErrInvalidPoints
	}
	if receiver.ID == systemAccountID {
		return nil, domain.Validationf("the system account cannot receive a bonus")
	}
	description, err := normalizeDescription(description)
	if err != nil {
		return nil, err
	}
	sourceRef = strings.TrimSpace(sourceRef)
	if description == "" {
		description = "Bonus"
	}
	base, err := s.prepare(ctx, domain.TxTypeBonus, systemAccount(), receiver, points, description)
	if err != nil {
		return nil, err
	}
	base.Metadata.SourceRef = sourceRef
	return base, nil
}

func bonusMovement() movement {
	return movement{credit: true, riskOnReceiver: true}
}

func (s *LedgerService) notifyBonus(ctx context.Context, txn *models.Transaction) {
	s.notifier.Notify(ctx, s.event(txn, txn.ToAccountID, domain.NotifyBonusReceived,
		fmt.Sprintf("%d points were added to your balance", txn.Points)))
}

// Penalty debits points from an account into the system account.
func (s *LedgerService) Penalty(ctx context.Context, fromAccountID uuid.UUID, points int64, reason string, actor models.ActorContext) (*models.Transaction, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	if !domain.ValidPoints(points) {
		return nil, domain.ErrInvalidPoints
	}
	reason, err := normalizeDescription(reason)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, domain.Validationf("penalty reason is required")
	}
	payer, err := s.store.Reader().FindAccountByID(ctx, fromAccountID)
	if err != nil {
		return nil, err
	}
	if payer.ID == systemAccountID {
		return nil, domain.Validationf("the system account cannot be penalized")
	}

	base, err := s.prepare(ctx, domain.TxTypePenalty, payer, systemAccount(), points, reason)
	if err != nil {
		return nil, err
	}
	txn, err := s.run(ctx, base, actor, movement{
		debit:        true,
		insufficient: domain.ErrInsufficientFunds,
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, s.event(txn, txn.FromAccountID, domain.NotifyPenaltyApplied,
		fmt.Sprintf("%d points were deducted: %s", txn.Points, txn.Description)))
	return txn, nil
}

// run executes m atomically with bounded retries and records the outcome.
func (s *LedgerService) run(ctx context.Context, base *models.Transaction, actor models.ActorContext, m movement) (*models.Transaction, error) {
	var (
		result   *models.Transaction
		refTaken bool
	)
	err := withRetry(ctx, base.Type, s.maxRetries, func() error {
		// The id stays fixed across attempts; only a reference lost to a concurrent unit is replaced.
		if refTaken {
			if err := s.rerollRef(ctx, base); err != nil {
				return err
			}
		}
		attempt := *base
		err := s.store.RunInTx(ctx, func(tx Tx) error {
			if err := s.execute(ctx, tx, &attempt, actor, m); err != nil {
				return err
			}
			result = &attempt
			return nil
		})
		refTaken = errors.Is(err, domain.ErrDuplicateReference)
		return err
	})
	if err != nil {
		observability.IncrementLedgerOperation(base.Type, domain.CodeOf(err))
		s.recordFailure(ctx, base, actor, err)
		zap.L().Warn("ledger movement failed",
			zap.String("type", base.Type),
			zap.String("transaction_id", base.ID.String()),
			zap.String("transaction_ref", base.TransactionRef),
			zap.Int64("points", base.Points),
			zap.Error(err),
		)
		return nil, err
	}

	observability.IncrementLedgerOperation(result.Type, domain.TxStatusCompleted)
	zap.L().Info("ledger movement completed",
		zap.String("type", result.Type),
		zap.String("transaction_id", result.ID.String()),
		zap.String("transaction_ref", result.TransactionRef),
		zap.String("from", result.FromUniID),
		zap.String("to", result.ToUniID),
		zap.Int64("points", result.Points),
		zap.Int("risk_score", result.RiskScore),
	)
	return result, nil
}

// execute performs one attempt of a movement inside tx. Any error rolls back every write.
func (s *LedgerService) execute(ctx context.Context, tx Tx, txn *models.Transaction, actor models.ActorContext, m movement) error {
	var lockIDs []uuid.UUID
	if m.debit {
		lockIDs = append(lockIDs, txn.FromAccountID)
	}
	if m.credit {
		lockIDs = append(lockIDs, txn.ToAccountID)
	}
	accounts, err := tx.LockAccounts(ctx, lockIDs...)
	if err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}
	for _, id := range lockIDs {
		if _, ok := accounts[id]; !ok {
			return domain.ErrAccountNotFound
		}
	}
	sender, receiver := systemAccount(), systemAccount()
	if m.debit {
		sender = accounts[txn.FromAccountID]
	}
	if m.credit {
		receiver = accounts[txn.ToAccountID]
	}

	if m.before != nil {
		if err := m.before(ctx, tx); err != nil {
			return err
		}
	}

	if m.reserveLimits {
		rec, err := s.limits.reserve(ctx, tx, sender.ID, txn.Points)
		if err != nil {
			return err
		}
		txn.Metadata.DailyTransactionCount = rec.DailyTransactionCount
		txn.Metadata.TotalDailyAmount = rec.DailyUsed
	}

	if m.debit && sender.Balance < txn.Points {
		return m.insufficient
	}

	riskSubject := sender
	if m.riskOnReceiver {
		riskSubject = receiver
	}
	txn.RiskScore = ComputeRiskScore(txn.Points, riskSubject, s.now().In(s.loc))
	txn.Metadata.RiskScore = txn.RiskScore

	txn.BalanceSnapshots = models.BalanceSnapshots{}
	if m.debit {
		txn.BalanceSnapshots.SenderBefore = sender.Balance
		txn.BalanceSnapshots.SenderAfter = sender.Balance - txn.Points
	}
	if m.credit {
		txn.BalanceSnapshots.ReceiverBefore = receiver.Balance
		txn.BalanceSnapshots.ReceiverAfter = receiver.Balance + txn.Points
	}

	txn.Status = domain.TxStatusPending
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if err := s.audit.Write(ctx, tx, txn.ID, actor, domain.AuditCreated, txn.Type+" created", txn.RiskScore); err != nil {
		return err
	}

	if m.debit {
		if err := tx.UpdateAccountBalance(ctx, sender.ID, txn.BalanceSnapshots.SenderBefore, txn.BalanceSnapshots.SenderAfter); err != nil {
			return fmt.Errorf("debit %s: %w", sender.UniID, err)
		}
	}
	if m.credit {
		if err := tx.UpdateAccountBalance(ctx, receiver.ID, txn.BalanceSnapshots.ReceiverBefore, txn.BalanceSnapshots.ReceiverAfter); err != nil {
			return fmt.Errorf("credit %s: %w", receiver.UniID, err)
		}
	}

	details := fmt.Sprintf("%d points %s -> %s", txn.Points, txn.FromUniID, txn.ToUniID)
	if err := transitionTransactionState(ctx, tx, s.audit, txn, domain.TxStatusCompleted, actor, domain.AuditProcessed, details, s.now()); err != nil {
		return err
	}

	if m.after != nil {
		if err := m.after(ctx, tx, txn); err != nil {
			return err
		}
	}

	if txn.RiskScore >= s.riskThreshold {
		observability.IncrementSuspicious()
		msg := fmt.Sprintf("risk score %d reached threshold %d", txn.RiskScore, s.riskThreshold)
		if err := s.audit.Write(ctx, tx, txn.ID, actor, domain.AuditSuspiciousActivity, msg, txn.RiskScore); err != nil {
			return err
		}
	}
	return nil
}

// recordFailure persists a failed attempt for the audit trail in its own store transaction.
// Inputs that never validated leave no trace. Balances and limits are not touched.
func (s *LedgerService) recordFailure(ctx context.Context, base *models.Transaction, actor models.ActorContext, cause error) {
	switch domain.KindOf(cause) {
	case domain.KindValidation, domain.KindNotFound, domain.KindForbidden:
		return
	}

	now := s.now()
	failed := *base
	failed.Status = domain.TxStatusFailed
	failed.BalanceSnapshots = models.BalanceSnapshots{}
	failed.FailedAt = &now
	failed.Metadata.FailureReason = failureReason(cause)

	ctx = context.WithoutCancel(ctx)
	if errors.Is(cause, domain.ErrDuplicateReference) {
		if err := s.rerollRef(ctx, &failed); err != nil {
			zap.L().Error("failed to record failed transaction", zap.String("transaction_id", failed.ID.String()), zap.Error(err))
			return
		}
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		if err := tx.InsertTransaction(ctx, &failed); err != nil {
			return fmt.Errorf("insert failed transaction: %w", err)
		}
		if err := s.audit.Write(ctx, tx, failed.ID, actor, domain.AuditCreated, failed.Type+" created", failed.RiskScore); err != nil {
			return err
		}
		return s.audit.Write(ctx, tx, failed.ID, actor, domain.AuditFailed, failed.Metadata.FailureReason, failed.RiskScore)
	})
	if err != nil {
		zap.L().Error("failed to record failed transaction",
			zap.String("transaction_id", failed.ID.String()),
			zap.String("cause", failed.Metadata.FailureReason),
			zap.Error(err),
		)
	}
}

func (s *LedgerService) rerollRef(ctx context.Context, txn *models.Transaction) error {
	ref, err := NewTransactionRef(ctx, s.store.Reader(), s.now())
	if err != nil {
		return err
	}
	txn.TransactionRef = ref
	return nil
}

func failureReason(err error) string {
	var limitErr *domain.LimitExceededError
	if errors.As(err, &limitErr) {
		return limitErr.Error()
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code + ": " + de.Message
	}
	return "internal error"
}

func (s *LedgerService) event(txn *models.Transaction, accountID uuid.UUID, kind, message string) notify.Event {
	id := txn.ID
	return notify.Event{
		AccountID:     accountID,
		Kind:          kind,
		TransactionID: &id,
		Reference:     txn.TransactionRef,
		Points:        txn.Points,
		Message:       message,
		CreatedAt:     s.now(),
	}
}
