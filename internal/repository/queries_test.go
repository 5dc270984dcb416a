package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/unicard/ledger/internal/domain"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		notFound error
		is       []error
		kind     domain.Kind
	}{
		{
			name: "transaction_ref_taken",
			err:  &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: transactionRefIndexName},
			is:   []error{domain.ErrPersistenceConflict, domain.ErrDuplicateReference},
			kind: domain.KindConflict,
		},
		{
			name: "recharge_ref_taken",
			err:  fmt.Errorf("insert recharge: %w", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: rechargeRefIndexName}),
			is:   []error{domain.ErrPersistenceConflict, domain.ErrDuplicateReference},
			kind: domain.KindConflict,
		},
		{
			name: "second_live_refund",
			err:  &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: refundIndexName},
			is:   []error{domain.ErrAlreadyRefunded},
			kind: domain.KindBusinessRule,
		},
		{
			name: "deadlock",
			err:  &pgconn.PgError{Code: codeDeadlockDetected, Message: "deadlock detected"},
			is:   []error{domain.ErrPersistenceConflict},
			kind: domain.KindConflict,
		},
		{
			name: "lock_timeout",
			err:  &pgconn.PgError{Code: codeLockNotAvailable, Message: "canceling statement due to lock timeout"},
			is:   []error{domain.ErrPersistenceConflict},
			kind: domain.KindConflict,
		},
		{
			name:     "no_rows",
			err:      pgx.ErrNoRows,
			notFound: domain.ErrAccountNotFound,
			is:       []error{domain.ErrAccountNotFound},
			kind:     domain.KindNotFound,
		},
		{
			name: "other_unique_violation",
			err:  &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "accounts_uni_id_key"},
			kind: domain.KindInternal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err, tc.notFound)
			for _, target := range tc.is {
				assert.True(t, errors.Is(got, target), "%v should match %v", got, target)
			}
			assert.Equal(t, tc.kind, domain.KindOf(got))
		})
	}
	assert.Nil(t, mapError(nil, domain.ErrAccountNotFound))
}
