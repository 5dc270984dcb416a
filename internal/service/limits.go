package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/observability"
	"go.uber.org/zap"
)

// LimitService is the only writer of limit records.
type LimitService struct {
	store          Store
	now            Clock
	loc            *time.Location
	defaultDaily   int64
	defaultMonthly int64
}

type LimitConfig struct {
	DailyLimit   int64
	MonthlyLimit int64
	Location     *time.Location
}

func NewLimitService(store Store, cfg LimitConfig, now Clock) *LimitService {
	if now == nil {
		now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = domain.DefaultDailyLimit
	}
	if cfg.MonthlyLimit <= 0 {
		cfg.MonthlyLimit = domain.DefaultMonthlyLimit
	}
	return &LimitService{
		store:          store,
		now:            now,
		loc:            cfg.Location,
		defaultDaily:   cfg.DailyLimit,
		defaultMonthly: cfg.MonthlyLimit,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// applyWindowResets zeroes counters whose window boundary has passed since the last reset.
// It reports whether the record changed.
func applyWindowResets(rec *models.LimitRecord, now time.Time) bool {
	changed := false
	day := startOfDay(now)
	if rec.LastResetDaily.Before(day) {
		rec.DailyUsed = 0
		rec.DailyTransactionCount = 0
		rec.LastResetDaily = day
		changed = true
	}
	month := startOfMonth(now)
	if rec.LastResetMonthly.Before(month) {
		rec.MonthlyUsed = 0
		rec.LastResetMonthly = month
		changed = true
	}
	return changed
}

func statusOf(rec *models.LimitRecord) *models.LimitStatus {
	return &models.LimitStatus{
		AccountID:        rec.AccountID,
		DailyLimit:       rec.DailyLimit,
		DailyUsed:        rec.DailyUsed,
		DailyRemaining:   max(rec.DailyLimit-rec.DailyUsed, 0),
		MonthlyLimit:     rec.MonthlyLimit,
		MonthlyUsed:      rec.MonthlyUsed,
		MonthlyRemaining: max(rec.MonthlyLimit-rec.MonthlyUsed, 0),
		IsSuspended:      rec.IsSuspended,
		SuspensionReason: rec.SuspensionReason,
	}
}

func (s *LimitService) localNow() time.Time {
	return s.now().In(s.loc)
}

func (s *LimitService) defaults(accountID uuid.UUID, now time.Time) models.LimitRecord {
	return models.LimitRecord{
		AccountID:        accountID,
		DailyLimit:       s.defaultDaily,
		MonthlyLimit:     s.defaultMonthly,
		LastResetDaily:   startOfDay(now),
		LastResetMonthly: startOfMonth(now),
		UpdatedAt:        now,
	}
}

func (s *LimitService) load(ctx context.Context, tx Tx, accountID uuid.UUID, now time.Time) (*models.LimitRecord, error) {
	rec, err := tx.GetLimitRecordForUpdate(ctx, accountID, s.defaults(accountID, now))
	if err != nil {
		return nil, fmt.Errorf("load limit record: %w", err)
	}
	rec.LastResetDaily = rec.LastResetDaily.In(s.loc)
	rec.LastResetMonthly = rec.LastResetMonthly.In(s.loc)
	return rec, nil
}

// reserve claims amount of daily and monthly headroom inside the caller's transaction.
// A rolled back transaction discards the reservation with it.
func (s *LimitService) reserve(ctx context.Context, tx Tx, accountID uuid.UUID, amount int64) (*models.LimitRecord, error) {
	now := s.localNow()
	rec, err := s.load(ctx, tx, accountID, now)
	if err != nil {
		return nil, err
	}
	applyWindowResets(rec, now)

	if rec.IsSuspended {
		observability.IncrementLimitRejection("suspended")
		return nil, domain.ErrAccountSuspended
	}

	dailyRemaining := max(rec.DailyLimit-rec.DailyUsed, 0)
	monthlyRemaining := max(rec.MonthlyLimit-rec.MonthlyUsed, 0)
	switch {
	case rec.DailyUsed+amount > rec.DailyLimit:
		observability.IncrementLimitRejection("daily")
		return nil, &domain.LimitExceededError{Window: "daily", DailyRemaining: dailyRemaining, MonthlyRemaining: monthlyRemaining}
	case rec.MonthlyUsed+amount > rec.MonthlyLimit:
		observability.IncrementLimitRejection("monthly")
		return nil, &domain.LimitExceededError{Window: "monthly", DailyRemaining: dailyRemaining, MonthlyRemaining: monthlyRemaining}
	}

	rec.DailyUsed += amount
	rec.MonthlyUsed += amount
	rec.DailyTransactionCount++
	rec.UpdatedAt = now
	if err := tx.SaveLimitRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save limit record: %w", err)
	}
	return rec, nil
}

// Status reports headroom for accountID, persisting any window reset it performs.
func (s *LimitService) Status(ctx context.Context, accountID uuid.UUID) (*models.LimitStatus, error) {
	var status *models.LimitStatus
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		if _, err := tx.FindAccountByID(ctx, accountID); err != nil {
			return err
		}
		now := s.localNow()
		rec, err := s.load(ctx, tx, accountID, now)
		if err != nil {
			return err
		}
		if applyWindowResets(rec, now) {
			rec.UpdatedAt = now
			if err := tx.SaveLimitRecord(ctx, rec); err != nil {
				return fmt.Errorf("save limit reset: %w", err)
			}
		}
		status = statusOf(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// SetLimits changes an account's caps. Counters already used stay as they are.
func (s *LimitService) SetLimits(ctx context.Context, accountID uuid.UUID, daily, monthly int64, actor models.ActorContext) (*models.LimitStatus, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	if daily <= 0 || monthly <= 0 {
		return nil, domain.Validationf("limits must be positive")
	}
	if daily > monthly {
		return nil, domain.Validationf("daily limit cannot exceed monthly limit")
	}
	status, err := s.mutate(ctx, accountID, func(rec *models.LimitRecord) {
		rec.DailyLimit = daily
		rec.MonthlyLimit = monthly
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("limits updated",
		zap.String("account_id", accountID.String()),
		zap.Int64("daily_limit", daily),
		zap.Int64("monthly_limit", monthly),
		zap.String("actor_id", actor.ActorID.String()),
	)
	return status, nil
}

// Suspend blocks every future reservation for the account until Unsuspend.
func (s *LimitService) Suspend(ctx context.Context, accountID uuid.UUID, reason string, actor models.ActorContext) (*models.LimitStatus, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validationf("suspension reason is required")
	}
	status, err := s.mutate(ctx, accountID, func(rec *models.LimitRecord) {
		rec.IsSuspended = true
		rec.SuspensionReason = reason
	})
	if err != nil {
		return nil, err
	}
	zap.L().Warn("account suspended from transacting",
		zap.String("account_id", accountID.String()),
		zap.String("reason", reason),
		zap.String("actor_id", actor.ActorID.String()),
	)
	return status, nil
}

func (s *LimitService) Unsuspend(ctx context.Context, accountID uuid.UUID, actor models.ActorContext) (*models.LimitStatus, error) {
	if !actor.IsAdmin {
		return nil, domain.ErrAccessDenied
	}
	return s.mutate(ctx, accountID, func(rec *models.LimitRecord) {
		rec.IsSuspended = false
		rec.SuspensionReason = ""
	})
}

func (s *LimitService) mutate(ctx context.Context, accountID uuid.UUID, apply func(rec *models.LimitRecord)) (*models.LimitStatus, error) {
	var status *models.LimitStatus
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		if _, err := tx.FindAccountByID(ctx, accountID); err != nil {
			return err
		}
		now := s.localNow()
		rec, err := s.load(ctx, tx, accountID, now)
		if err != nil {
			return err
		}
		applyWindowResets(rec, now)
		apply(rec)
		rec.UpdatedAt = now
		if err := tx.SaveLimitRecord(ctx, rec); err != nil {
			return fmt.Errorf("save limit record: %w", err)
		}
		status = statusOf(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}
