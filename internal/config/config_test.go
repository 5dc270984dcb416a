package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LEDGER_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cfg.DefaultDailyLimit)
	assert.Equal(t, int64(10000), cfg.DefaultMonthlyLimit)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 70, cfg.RiskThreshold)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 15*time.Second, cfg.RechargeLockTTL)
	assert.Equal(t, "unicard:notifications", cfg.NotifyChannel)
	assert.True(t, cfg.RunMigrations)
}

func TestLoadPrefixedOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("UNICARD_LEDGER_DEFAULT_DAILY_LIMIT", "500")
	t.Setenv("UNICARD_LEDGER_RISK_THRESHOLD", "50")
	t.Setenv("LEDGER_TIMEZONE", "America/Bogota")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(500), cfg.DefaultDailyLimit)
	assert.Equal(t, 50, cfg.RiskThreshold)
	assert.Equal(t, "America/Bogota", cfg.Location.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":   {"JWT_SECRET": ""},
		"short secret":     {"JWT_SECRET": "short"},
		"bad timezone":     {"JWT_SECRET": testSecret, "LEDGER_TIMEZONE": "Mars/Olympus"},
		"daily > monthly":  {"JWT_SECRET": testSecret, "LEDGER_DEFAULT_DAILY_LIMIT": "20000"},
		"threshold range":  {"JWT_SECRET": testSecret, "LEDGER_RISK_THRESHOLD": "150"},
		"bad lock ttl":     {"JWT_SECRET": testSecret, "RECHARGE_LOCK_TTL": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
