package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unicard/ledger/internal/service"
	"github.com/unicard/ledger/internal/testutil/memstore"
)

func TestReferenceFormats(t *testing.T) {
	store := memstore.New()
	at := time.Date(2026, time.March, 15, 14, 25, 1, 0, time.UTC)

	ref, err := service.NewTransactionRef(context.Background(), store.Reader(), at)
	require.NoError(t, err)
	assert.Regexp(t, `^UC20260315142501\d{6}$`, ref)

	rch, err := service.NewRechargeRef(context.Background(), store.Reader(), at)
	require.NoError(t, err)
	assert.Regexp(t, `^RCH-260315-\d{4}$`, rch)
}

func TestReferenceUsesUTC(t *testing.T) {
	store := memstore.New()
	at := time.Date(2026, time.March, 15, 21, 0, 0, 0, bogota)

	ref, err := service.NewTransactionRef(context.Background(), store.Reader(), at)
	require.NoError(t, err)
	assert.Regexp(t, `^UC20260316020000\d{6}$`, ref)
}
