package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "SESSION_TIMEOUT", "SESSION_MAX_FAILED_TRIES",
		"TRANSACTIONS_TABLE", "TURN_IDEMPOTENCY_TABLE", "IDEMPOTENCY_TTL",
		"CURRENCY", "MIN_AMOUNT_MINOR", "MAX_AMOUNT_MINOR",
		"DAILY_CAP_MINOR", "MONTHLY_CAP_MINOR", "COMPLIANCE_FAIL_OPEN",
		"APPROVAL_THRESHOLD_MINOR", "GATEWAY_ALLOWED_IPS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 180*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 3, cfg.Session.MaxFailedTries)
	assert.Equal(t, "sikaflow-transactions", cfg.Tables.Transactions)
	assert.Equal(t, "sikaflow-turns", cfg.Tables.TurnIdempotency)
	assert.Equal(t, 48*time.Hour, cfg.Tables.TTLWindow)
	assert.Equal(t, "GHS", cfg.Limits.Currency)
	assert.Equal(t, int64(100), cfg.Limits.MinAmount)
	assert.Equal(t, int64(500000), cfg.Limits.MaxAmount)
	assert.Equal(t, int64(2000000), cfg.Limits.DailyCap)
	assert.Equal(t, int64(20000000), cfg.Limits.MonthlyCap)
	assert.False(t, cfg.Limits.ComplianceFailOpen)
	assert.Equal(t, int64(100000), cfg.Approval.Threshold)
	assert.Empty(t, cfg.Gateway.AllowedIPs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SESSION_TIMEOUT", "90s")
	t.Setenv("MAX_AMOUNT_MINOR", "1000000")
	t.Setenv("COMPLIANCE_FAIL_OPEN", "true")
	t.Setenv("GATEWAY_ALLOWED_IPS", "10.0.0.1, 10.0.0.2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 90*time.Second, cfg.Session.Timeout)
	assert.Equal(t, int64(1000000), cfg.Limits.MaxAmount)
	assert.True(t, cfg.Limits.ComplianceFailOpen)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Gateway.AllowedIPs)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 180*time.Second, cfg.Session.Timeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Logger.Level = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "invalid log level")

	cfg = base()
	cfg.Session.MaxFailedTries = 0
	assert.ErrorContains(t, cfg.Validate(), "max failed tries")

	cfg = base()
	cfg.Limits.MaxAmount = 50
	cfg.Limits.MinAmount = 100
	assert.ErrorContains(t, cfg.Validate(), "must be >= min amount")

	cfg = base()
	cfg.Limits.MonthlyCap = cfg.Limits.DailyCap - 1
	assert.ErrorContains(t, cfg.Validate(), "monthly cap")

	cfg = base()
	cfg.Approval.Threshold = 0
	assert.ErrorContains(t, cfg.Validate(), "approval threshold")
}
