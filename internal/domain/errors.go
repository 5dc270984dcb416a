package domain

import (
	"errors"
	"fmt"
)

// Kind classifies ledger errors so callers can map them to responses.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindBusinessRule Kind = "business_rule"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is a structured ledger error. Sentinels below are compared with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation              = newError(KindValidation, "validation_failed", "validation failed")
	ErrInvalidPoints           = newError(KindValidation, "invalid_points", "points must be between 1 and 10000")
	ErrInvalidUniID            = newError(KindValidation, "invalid_uni_id", "uni id must match LL-DDD")
	ErrSelfTransferRejected    = newError(KindValidation, "self_transfer_rejected", "cannot transfer to the same account")
	ErrAccountNotFound         = newError(KindNotFound, "account_not_found", "account not found")
	ErrTransactionNotFound     = newError(KindNotFound, "transaction_not_found", "transaction not found")
	ErrRechargeNotFound        = newError(KindNotFound, "recharge_not_found", "recharge request not found")
	ErrLimitExceeded           = newError(KindBusinessRule, "limit_exceeded", "transaction limit exceeded")
	ErrAccountSuspended        = newError(KindBusinessRule, "account_suspended", "account is suspended from transacting")
	ErrInsufficientFunds       = newError(KindBusinessRule, "insufficient_funds", "insufficient funds")
	ErrInsufficientForRefund   = newError(KindBusinessRule, "insufficient_funds_for_refund", "receiver no longer holds enough points to refund")
	ErrNotRefundable           = newError(KindBusinessRule, "not_refundable", "transaction cannot be refunded")
	ErrAlreadyRefunded         = newError(KindBusinessRule, "already_refunded", "transaction has already been refunded")
	ErrRequestAlreadyProcessed = newError(KindBusinessRule, "request_already_processed", "recharge request has already been processed")
	ErrInvalidTransition       = newError(KindBusinessRule, "invalid_transition", "invalid status transition")
	ErrAccessDenied            = newError(KindForbidden, "access_denied", "access denied")
	ErrPersistenceConflict     = newError(KindConflict, "persistence_conflict", "concurrent modification detected, try again")
	ErrLockNotObtained         = newError(KindConflict, "lock_not_obtained", "resource is being processed, try again")
	ErrDuplicateReference      = newError(KindConflict, "duplicate_reference", "reference already in use, try again")
)

// Validationf returns a validation error with a specific message.
func Validationf(format string, args ...any) error {
	return &wrapped{base: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

type wrapped struct {
	base *Error
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.base }

// LimitExceededError reports which window rejected a reservation and the headroom left.
type LimitExceededError struct {
	Window           string
	DailyRemaining   int64
	MonthlyRemaining int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: daily remaining %d, monthly remaining %d", e.Window, e.DailyRemaining, e.MonthlyRemaining)
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }

// KindOf returns the classification of err, KindInternal when it carries none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, "internal" when it carries none.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}
