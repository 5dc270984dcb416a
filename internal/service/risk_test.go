package service_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/unicard/ledger/internal/domain"
	"github.com/unicard/ledger/internal/models"
	"github.com/unicard/ledger/internal/service"
)

func TestComputeRiskScore(t *testing.T) {
	active := &models.Account{Status: domain.AccountStatusActive, ReliabilityScore: decimal.NewFromInt(4)}
	noon := time.Date(2026, time.March, 10, 12, 0, 0, 0, bogota)

	cases := []struct {
		name    string
		points  int64
		account *models.Account
		at      time.Time
		want    int
	}{
		{name: "small_daytime", points: 100, account: active, at: noon, want: 0},
		{name: "boundary_500", points: 500, account: active, at: noon, want: 0},
		{name: "over_500", points: 501, account: active, at: noon, want: 20},
		{name: "over_1000_accumulates", points: 1001, account: active, at: noon, want: 50},
		{name: "inactive", points: 10, account: &models.Account{Status: domain.AccountStatusSuspended, ReliabilityScore: decimal.NewFromInt(4)}, at: noon, want: 40},
		{name: "unreliable", points: 10, account: &models.Account{Status: domain.AccountStatusActive, ReliabilityScore: decimal.RequireFromString("2.9")}, at: noon, want: 25},
		{name: "reliability_boundary", points: 10, account: &models.Account{Status: domain.AccountStatusActive, ReliabilityScore: decimal.NewFromInt(3)}, at: noon, want: 0},
		{name: "early_morning", points: 10, account: active, at: time.Date(2026, time.March, 10, 5, 59, 0, 0, bogota), want: 15},
		{name: "six_am", points: 10, account: active, at: time.Date(2026, time.March, 10, 6, 0, 0, 0, bogota), want: 0},
		{name: "late_evening", points: 10, account: active, at: time.Date(2026, time.March, 10, 23, 30, 0, 0, bogota), want: 0},
		{name: "capped", points: 5000, account: &models.Account{Status: domain.AccountStatusBanned}, at: time.Date(2026, time.March, 10, 2, 0, 0, 0, bogota), want: 100},
		{name: "nil_account", points: 600, account: nil, at: noon, want: 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, service.ComputeRiskScore(tc.points, tc.account, tc.at))
		})
	}
}
