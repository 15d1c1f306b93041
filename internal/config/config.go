// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment selects the execution mode: local rebalances require a
// confirmation round-trip through the notifier, prod executes directly.
type Environment string

const (
	EnvironmentLocal Environment = "local"
	EnvironmentProd  Environment = "prod"
)

// Config holds application configuration.
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Database
	DatabasePath   string
	LedgerDBPath   string
	HistoryDataDir string

	// Environment
	Environment Environment

	// Broker credentials for the default/live account; per-strategy
	// instances may carry their own credential pairs in code.
	BrokerAPIKey    string
	BrokerAPISecret string
	BrokerPaper     bool

	// Market data cache & retry (C3)
	CacheDir              string
	CacheValidityHours    int
	MarketDataMaxRetries  int
	MarketDataRetryDelay  time.Duration
	MarketDataEnableRetry bool
	MarketDataPeriod      string

	// Rebalance cadence (C10)
	RebalanceIntervalDays int

	// Order executor (C6)
	SettlementDelay  time.Duration
	FillPollAttempts int
	FillPollInterval time.Duration

	// Notification (C11)
	NotifyWebhookURL string
	NotifyTimeout    time.Duration
	ConfirmationWait time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables, applying the
// same defaults-with-override pattern used throughout this codebase.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnvAsInt("PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/app.db"),
		LedgerDBPath:   getEnv("LEDGER_DB_PATH", "./data/ledger.db"),
		HistoryDataDir: getEnv("HISTORY_DATA_DIR", "./data/history"),

		Environment: Environment(getEnv("ENVIRONMENT", string(EnvironmentProd))),

		BrokerAPIKey:    getEnv("BROKER_API_KEY", ""),
		BrokerAPISecret: getEnv("BROKER_API_SECRET", ""),
		BrokerPaper:     getEnvAsBool("BROKER_PAPER", true),

		CacheDir:              getEnv("CACHE_DIR", "./data/cache"),
		CacheValidityHours:    getEnvAsInt("CACHE_VALIDITY_HOURS", 24),
		MarketDataMaxRetries:  getEnvAsInt("MARKET_DATA_MAX_RETRIES", 3),
		MarketDataRetryDelay:  time.Duration(getEnvAsInt("MARKET_DATA_RETRY_DELAY_SECONDS", 2)) * time.Second,
		MarketDataEnableRetry: getEnvAsBool("MARKET_DATA_ENABLE_RETRY", true),
		MarketDataPeriod:      getEnv("MARKET_DATA_PERIOD", "1y"),

		RebalanceIntervalDays: getEnvAsInt("REBALANCE_INTERVAL_DAYS", 22),

		SettlementDelay:  time.Duration(getEnvAsInt("SETTLEMENT_DELAY_SECONDS", 3)) * time.Second,
		FillPollAttempts: getEnvAsInt("FILL_POLL_ATTEMPTS", 10),
		FillPollInterval: time.Duration(getEnvAsInt("FILL_POLL_INTERVAL_MS", 500)) * time.Millisecond,

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyTimeout:    time.Duration(getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 30)) * time.Second,
		ConfirmationWait: time.Duration(getEnvAsInt("CONFIRMATION_WAIT_SECONDS", 30)) * time.Second,

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required configuration is present and internally consistent.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.LedgerDBPath == "" {
		return fmt.Errorf("LEDGER_DB_PATH is required")
	}
	if c.Environment != EnvironmentLocal && c.Environment != EnvironmentProd {
		return fmt.Errorf("ENVIRONMENT must be %q or %q, got %q", EnvironmentLocal, EnvironmentProd, c.Environment)
	}
	if c.RebalanceIntervalDays <= 0 {
		return fmt.Errorf("REBALANCE_INTERVAL_DAYS must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
