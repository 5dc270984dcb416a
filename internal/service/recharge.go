package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/notify"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

const maxProofRefLength = 255

// Locker serializes work on a key across service instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RechargeService runs the request, approve and reject workflow for purchased points.
type RechargeService struct {
	store      Store
	ledger     *LedgerService
	locker     Locker
	lockTTL    time.Duration
	notifier   notify.Notifier
	now        Clock
	maxRetries int
}

type RechargeConfig struct {
	LockTTL    time.Duration
	MaxRetries int
}

func NewRechargeService(store Store, ledger *LedgerService, locker Locker, notifier notify.Notifier, cfg RechargeConfig, now Clock) *RechargeService {
	if now == nil {
		now = time.Now
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &RechargeService{
		store:      store,
		ledger:     ledger,
		locker:     locker,
		lockTTL:    cfg.LockTTL,
		notifier:   notifier,
		now:        now,
		maxRetries: cfg.MaxRetries,
	}
}

func validateNotes(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > domain.MaxDescriptionLength {
		return "", domain.Validationf("%s must be at most %d characters", field, domain.MaxDescriptionLength)
	}
	return value, nil
}

// Submit files a pending recharge request for accountID.
func (s *RechargeService) Submit(ctx context.Context, accountID uuid.UUID, points int64, proofRef string, actor models.ActorContext) (*models.RechargeRequest, error) {
	if !actor.IsAdmin && actor.ActorID != accountID {
		return nil, domain.ErrAccessDenied
	}
	if points < domain.MinRechargePoints || points > domain.MaxRechargePoints {
		return nil, domain.Validationf("points requested must be between %d and %d", domain.MinRechargePoints, domain.MaxRechargePoints)
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, domain.Validationf("proof of payment reference is required")
	}
	if len(proofRef) > maxProofRefLength {
		return nil, domain.Validationf("proof of payment reference must be at most %d characters", maxProofRefLength)
	}

	reader := s.store.Reader()
	if _, err := reader.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	now := s.now()
	ref, err := NewRechargeRef(ctx, reader, now)
	if err != nil {
		return nil, err
	}
	due := domain.AmountDue(points)
	req := &models.RechargeRequest{
		ID:                uuid.New(),
		RequestRef:        ref,
		AccountID:         accountID,
		PointsRequested:   points,
		AmountDue:         due.Amount,
		Currency:          due.Currency,
		ProofOfPaymentRef: proofRef,
		Status:            domain.RechargeStatusPending,
		CreatedAt:         now,
	}
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		if err := tx.InsertRechargeRequest(ctx, req); err != nil {
			return fmt.Errorf("insert recharge request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementRechargeTransition(domain.RechargeStatusPending)
	zap.L().Info("recharge requested",
		zap.String("request_id", req.ID.String()),
		zap.String("request_ref", req.RequestRef),
		zap.String("account_id", accountID.String()),
		zap.Int64("points", points),
		zap.String("amount_due", due.String()),
	)
	return req, nil
}

// Approve credits the requested points and marks the request approved in one store transaction.
// If the credit fails the request stays pending.
func (s *RechargeService) Approve(ctx context.Context, requestID uuid.UUID, notes string, actor models.ActorContext) (*models.RechargeRequest, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	notes, err := validateNotes("admin notes", notes)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, "recharge:"+requestID.String(), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	reader := s.store.Reader()
	req, err := reader.GetRechargeRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RechargeStatusPending {
		return nil, fmt.Errorf("%w: request is %s", domain.ErrRequestAlreadyProcessed, req.Status)
	}
	account, err := reader.FindAccountByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	base, err := s.ledger.prepareBonus(ctx, account, req.PointsRequested, req.RequestRef, "Recharge "+req.RequestRef)
	if err != nil {
		return nil, err
	}

	var (
		approved *models.RechargeRequest
		credit   *models.Transaction
		refTaken bool
	)
	err = withRetry(ctx, "recharge_approve", s.maxRetries, func() error {
		if refTaken {
			if err := s.ledger.rerollRef(ctx, base); err != nil {
				return err
			}
		}
		attempt := *base
		err := s.store.RunInTx(ctx, func(tx Tx) error {
			locked, err := tx.GetRechargeRequestForUpdate(ctx, requestID)
			if err != nil {
				return err
			}
			if err := transitionRechargeState(locked, domain.RechargeStatusApproved); err != nil {
				return err
			}
			if err := s.ledger.execute(ctx, tx, &attempt, actor, bonusMovement()); err != nil {
				return err
			}
			now := s.now()
			txnID := attempt.ID
			locked.AdminNotes = notes
			locked.ProcessedBy = actor.ActorPtr()
			locked.ProcessedAt = &now
			locked.TransactionID = &txnID
			rows, err := tx.UpdateRechargeRequest(ctx, locked)
			if err != nil {
				return fmt.Errorf("update recharge request: %w", err)
			}
			if err := requireExactlyOne(rows, "approve recharge request"); err != nil {
				return err
			}
			approved = locked
			credit = &attempt
			return nil
		})
		refTaken = errors.Is(err, domain.ErrDuplicateReference)
		return err
	})
	if err != nil {
		observability.IncrementLedgerOperation(domain.TxTypeBonus, domain.CodeOf(err))
		zap.L().Warn("recharge approval failed",
			zap.String("request_id", requestID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	observability.IncrementLedgerOperation(domain.TxTypeBonus, domain.TxStatusCompleted)
	observability.IncrementRechargeTransition(domain.RechargeStatusApproved)
	zap.L().Info("recharge approved",
		zap.String("request_id", approved.ID.String()),
		zap.String("request_ref", approved.RequestRef),
		zap.String("transaction_id", credit.ID.String()),
		zap.Int64("points", credit.Points),
	)
	s.ledger.notifyBonus(ctx, credit)
	s.notifier.Notify(ctx, notify.Event{
		AccountID:     approved.AccountID,
		Kind:          domain.NotifyRechargeApproved,
		TransactionID: approved.TransactionID,
		Reference:     approved.RequestRef,
		Points:        approved.PointsRequested,
		Message:       fmt.Sprintf("Your recharge %s was approved", approved.RequestRef),
		CreatedAt:     s.now(),
	})
	return approved, nil
}

// Reject closes a pending request without any ledger effect.
func (s *RechargeService) Reject(ctx context.Context, requestID uuid.UUID, reason, notes string, actor models.ActorContext) (*models.RechargeRequest, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	reason, err := validateNotes("rejection reason", reason)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, domain.Validationf("rejection reason is required")
	}
	notes, err = validateNotes("admin notes", notes)
	if err != nil {
		return nil, err
	}

	req, err := s.close(ctx, requestID, domain.RechargeStatusRejected, func(r *models.RechargeRequest) error {
		r.RejectionReason = reason
		r.AdminNotes = notes
		r.ProcessedBy = actor.ActorPtr()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, notify.Event{
		AccountID: req.AccountID,
		Kind:      domain.NotifyRechargeRejected,
		Reference: req.RequestRef,
		Points:    req.PointsRequested,
		Message:   fmt.Sprintf("Your recharge %s was rejected: %s", req.RequestRef, reason),
		CreatedAt: s.now(),
	})
	return req, nil
}

// Cancel lets the requester withdraw a pending request.
func (s *RechargeService) Cancel(ctx context.Context, requestID uuid.UUID, actor models.ActorContext) (*models.RechargeRequest, error) {
	return s.close(ctx, requestID, domain.RechargeStatusCancelled, func(r *models.RechargeRequest) error {
		if r.AccountID != actor.ActorID {
			return domain.ErrAccessDenied
		}
		return nil
	})
}

func (s *RechargeService) close(ctx context.Context, requestID uuid.UUID, status string, apply func(r *models.RechargeRequest) error) (*models.RechargeRequest, error) {
	var closed *models.RechargeRequest
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		req, err := tx.GetRechargeRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := apply(req); err != nil {
			return err
		}
		if err := transitionRechargeState(req, status); err != nil {
			return err
		}
		now := s.now()
		req.ProcessedAt = &now
		rows, err := tx.UpdateRechargeRequest(ctx, req)
		if err != nil {
			return fmt.Errorf("update recharge request: %w", err)
		}
		if err := requireExactlyOne(rows, status+" recharge request"); err != nil {
			return err
		}
		closed = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementRechargeTransition(status)
	zap.L().Info("recharge request closed",
		zap.String("request_id", closed.ID.String()),
		zap.String("status", status),
	)
	return closed, nil
}

func (s *RechargeService) Get(ctx context.Context, requestID uuid.UUID, actor models.ActorContext) (*models.RechargeRequest, error) {
	req, err := s.store.Reader().GetRechargeRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && req.AccountID != actor.ActorID {
		return nil, domain.ErrAccessDenied
	}
	return req, nil
}

// ListForAccount returns an account's requests, newest first.
func (s *RechargeService) ListForAccount(ctx context.Context, accountID uuid.UUID, page models.Page, actor models.ActorContext) ([]models.RechargeRequest, error) {
	if !actor.IsAdmin && accountID != actor.ActorID {
		return nil, domain.ErrAccessDenied
	}
	page = page.Normalize()
	return s.store.Reader().ListRechargeRequests(ctx, &accountID, "", page.Size, page.Offset())
}

// ListByStatus is the admin review queue. An empty status lists every request.
func (s *RechargeService) ListByStatus(ctx context.Context, status string, page models.Page, actor models.ActorContext) ([]models.RechargeRequest, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	status = normalizeState(status)
	if status != "" {
		if _, ok := rechargeTransitions[status]; !ok {
			return nil, domain.Validationf("unknown recharge status %q", status)
		}
	}
	page = page.Normalize()
	return s.store.Reader().ListRechargeRequests(ctx, nil, status, page.Size, page.Offset())
}
