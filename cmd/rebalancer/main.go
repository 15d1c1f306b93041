package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aristath/momentum-rebalancer/internal/adminserver"
	"github.com/aristath/momentum-rebalancer/internal/broker/alpaca"
	"github.com/aristath/momentum-rebalancer/internal/clock"
	"github.com/aristath/momentum-rebalancer/internal/config"
	"github.com/aristath/momentum-rebalancer/internal/database"
	"github.com/aristath/momentum-rebalancer/internal/executor"
	"github.com/aristath/momentum-rebalancer/internal/ledger"
	"github.com/aristath/momentum-rebalancer/internal/livestrategy"
	"github.com/aristath/momentum-rebalancer/internal/locking"
	"github.com/aristath/momentum-rebalancer/internal/marketdata"
	"github.com/aristath/momentum-rebalancer/internal/marketdata/yahoo"
	"github.com/aristath/momentum-rebalancer/internal/notify"
	"github.com/aristath/momentum-rebalancer/internal/rebalanceflag"
	"github.com/aristath/momentum-rebalancer/internal/supervisor"
	"github.com/aristath/momentum-rebalancer/internal/universe"
	"github.com/aristath/momentum-rebalancer/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting momentum rebalancer")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	clk, err := clock.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load NY calendar")
	}

	appDB, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open application database")
	}
	defer appDB.Close()
	db := appDB.Conn()

	ledgerDB, err := sql.Open("sqlite", cfg.LedgerDBPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger database")
	}
	defer ledgerDB.Close()

	if err := ledger.Migrate(ledgerDB); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate ledger schema")
	}

	universeStore, err := universe.New(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to migrate universe schema")
	}
	flagStore, err := rebalanceflag.New(db, clk, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to migrate rebalance flag schema")
	}

	led := ledger.New(ledgerDB, clk, log)
	locks := locking.NewManager()

	brokerClient := alpaca.New(alpaca.Config{
		BaseURL:   alpacaBaseURL(cfg.BrokerPaper),
		APIKeyID:  cfg.BrokerAPIKey,
		APISecret: cfg.BrokerAPISecret,
		Timeout:   30 * time.Second,
	}, log)

	provider := yahoo.New(log, 30*time.Second)
	loader := marketdata.NewLoader(marketdata.LoaderConfig{
		CacheDir:    cfg.CacheDir,
		ValidityTTL: time.Duration(cfg.CacheValidityHours) * time.Hour,
		MaxRetries:  cfg.MarketDataMaxRetries,
		RetryDelay:  cfg.MarketDataRetryDelay,
		EnableRetry: cfg.MarketDataEnableRetry,
		Period:      cfg.MarketDataPeriod,
	}, provider, log)

	exec := executor.New(brokerClient, executor.Config{
		SettlementDelay:  cfg.SettlementDelay,
		FillPollAttempts: cfg.FillPollAttempts,
		FillPollInterval: cfg.FillPollInterval,
	}, log)

	low, err := universeStore.Members(universe.RiskLow)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load low-risk universe")
	}
	medium, err := universeStore.Members(universe.RiskMedium)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load medium-risk universe")
	}
	high, err := universeStore.Members(universe.RiskHigh)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load high-risk universe")
	}

	liveStrategy := livestrategy.New(livestrategy.Config{
		TopN: 20,
		Universes: map[ledger.Bucket][]string{
			ledger.BucketLow:    low,
			ledger.BucketMedium: medium,
			ledger.BucketHigh:   high,
		},
	}, brokerClient, led, loader, exec, clk, log)

	var notifier notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout, log)
	} else {
		notifier = notify.NewWebhookNotifier("http://127.0.0.1:0", cfg.NotifyTimeout, log)
	}

	fleet := []supervisor.FleetMember{
		supervisor.LiveStrategyMember{Name_: "live", S: liveStrategy},
	}

	sup := supervisor.New(supervisor.Config{
		Environment:      string(cfg.Environment),
		ConfirmationWait: cfg.ConfirmationWait,
	}, fleet, flagStore, led, loader, brokerClient, notifier, locks, clk, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start supervisor")
	}
	defer sup.Stop()

	admin := adminserver.New(adminserver.Config{
		Port:    cfg.Port,
		Log:     log,
		DevMode: cfg.DevMode,
		Ledger:  led,
		Flag:    flagStore,
		Jobs:    sup,
	})
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("admin server stopped")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("admin server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	if err := admin.Shutdown(); err != nil {
		log.Error().Err(err).Msg("admin server forced shutdown")
	}
	log.Info().Msg("stopped")
}

func alpacaBaseURL(paper bool) string {
	if paper {
		return "https://paper-api.alpaca.markets"
	}
	return "https://api.alpaca.markets"
}
