package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_PATH", "LEDGER_DB_PATH", "ENVIRONMENT", "REBALANCE_INTERVAL_DAYS",
	} {
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, EnvironmentProd, cfg.Environment)
	require.Equal(t, 22, cfg.RebalanceIntervalDays)
	require.Equal(t, 24, cfg.CacheValidityHours)
	require.Equal(t, 3, cfg.MarketDataMaxRetries)
}

func TestValidate_RejectsUnknownEnvironment(t *testing.T) {
	cfg := &Config{
		DatabasePath:          "./x.db",
		LedgerDBPath:          "./l.db",
		Environment:           "staging",
		RebalanceIntervalDays: 22,
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsNonPositiveInterval(t *testing.T) {
	cfg := &Config{
		DatabasePath:          "./x.db",
		LedgerDBPath:          "./l.db",
		Environment:           EnvironmentProd,
		RebalanceIntervalDays: 0,
	}
	err := cfg.Validate()
	require.Error(t, err)
}
