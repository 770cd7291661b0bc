package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"binary-core/internal/api"
	"binary-core/internal/engine"
	"binary-core/internal/events"
	"binary-core/internal/gateway"
	"binary-core/internal/market"
	"binary-core/internal/monitor"
	"binary-core/internal/persistence"
	"binary-core/internal/risk"
	"binary-core/internal/session"
	"binary-core/internal/strategy"
	"binary-core/pkg/config"
	"binary-core/pkg/db"
	"binary-core/pkg/logging"
)

const version = "0.4.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", false)
		bootLog.Fatal().Err(err).Msg("config load failed")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	logger.Info().Str("version", version).Str("port", cfg.Port).Str("account", cfg.AccountMode).Msg("starting binary-core")
	logger.Info().Str("path", cfg.DBPath).Msg("using database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("database init failed")
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		logger.Fatal().Err(err).Msg("database migrations failed")
	}
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := database.Ping(pingCtx); err != nil {
		logger.Fatal().Err(err).Msg("database ping failed")
	}
	pingCancel()

	writer := persistence.NewBatchWriter(database.DB, 50, time.Second, logging.Component(logger, "batch_writer"))
	journal := persistence.NewJournal(writer, logger)

	registry := strategy.DefaultRegistry()
	if err := loadStrategyConfig(registry, cfg.StrategyConfigPath); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StrategyConfigPath).Msg("strategy config invalid")
	}
	logger.Info().Int("strategies", len(registry.List())).Msg("strategy registry ready")

	metrics := monitor.NewMetrics(prometheus.DefaultRegisterer)
	(&monitor.Monitor{
		Bus:  bus,
		Sink: monitor.LogSink{Log: logging.Component(logger, "alerts")},
		Log:  logger,
	}).Start(ctx)

	gwCfg := gateway.DefaultConfig()
	gwCfg.URL = cfg.DerivWSURL
	gwCfg.AppID = cfg.DerivAppID

	mgr := engine.NewManager(engine.Config{
		Registry: registry,
		Defaults: sessionDefaults(cfg),
		Brokers:  engine.NewBrokers(gwCfg, market.DefaultSimConfig(), logger),
		Tokens:   cfg.Token,
		Timing:   session.DefaultTiming(),
		Logger:   logger,
		Version:  version,
		Journal:  journal,
		Metrics:  metrics,
		Bus:      bus,
		Queries:  database.Queries(),
	})

	server := api.NewServer(mgr, bus, api.Options{
		JWTSecret:   cfg.JWTSecret,
		APIKey:      cfg.APIKey,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.APIRateLimit,
		RateBurst:   cfg.APIRateBurst,
		Gatherer:    prometheus.DefaultGatherer,
	}, logger)
	if cfg.APIKey == "" {
		logger.Warn().Msg("API_KEY not set; API is unauthenticated")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, ":"+cfg.Port)
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("api server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	cancel()

	if err := writer.Close(); err != nil {
		logger.Error().Err(err).Msg("journal flush failed")
	}
	m := writer.GetMetrics()
	logger.Info().
		Uint64("written", m.TotalWrites).
		Uint64("failed", m.TotalErrors).
		Int("dropped_events", int(bus.Dropped())).
		Msg("shutdown complete")
}

// loadStrategyConfig applies the YAML presets when the file exists.
func loadStrategyConfig(reg *strategy.Registry, path string) error {
	if path == "" {
		return nil
	}
	file, err := strategy.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return reg.ApplyConfig(file)
}

// sessionDefaults maps the environment onto the session settings a start
// request is layered over.
func sessionDefaults(cfg *config.Config) session.Config {
	d := session.DefaultConfig()
	d.StrategyID = cfg.DefaultStrategy
	d.Symbol = cfg.DefaultSymbol
	d.AccountMode = cfg.AccountMode
	d.BaseStake = cfg.StakeInitial
	d.ProfitTarget = cfg.ProfitTarget
	d.LossLimit = cfg.LossLimit
	d.PayoutRate = cfg.PayoutRate
	d.MinBalance = cfg.MinBalance
	d.MartingaleEnabled = cfg.MartingaleEnabled
	d.MartingaleMultiplier = cfg.MartingaleMultiplier
	d.MaxMartingaleSteps = cfg.MaxMartingaleSteps
	d.MaxConsecutiveLosses = cfg.MaxConsecutiveLosses
	d.MaxTradesPerDay = cfg.MaxTradesPerDay
	d.TradingMode = cfg.TradingMode
	d.RiskMode = cfg.RiskMode
	if strings.Contains(cfg.StopLossType, "consecutive") {
		d.StopPolicy = risk.StopPolicyConsecutiveLosses
	} else {
		d.StopPolicy = risk.StopPolicyValue
	}
	return d
}
