package main

import (
	"context"
	"flag"
	"os"
	"time"

	"binary-core/internal/engine"
	"binary-core/internal/events"
	"binary-core/internal/gateway"
	"binary-core/internal/market"
	"binary-core/internal/session"
	"binary-core/internal/strategy"
	"binary-core/pkg/logging"
)

// sim_demo runs one session against the in-process simulator and prints every
// settlement. It does not touch Deriv or the database.
//
// Usage:
//   go run ./scripts/sim_demo -strategy alpha_bot_1 -for 2m
//
// The session stops on its own when the profit target or loss limit is hit.

func main() {
	strategyID := flag.String("strategy", "alpha_bot_1", "strategy id")
	mode := flag.String("mode", "faster", "trading mode")
	risk := flag.String("risk", "optimized", "risk mode")
	runFor := flag.Duration("for", 2*time.Minute, "maximum run time")
	tick := flag.Duration("tick", 50*time.Millisecond, "simulated tick interval")
	flag.Parse()

	logger := logging.New("info", true)

	sim := market.DefaultSimConfig()
	sim.Interval = *tick

	bus := events.NewBus()
	defaults := session.DefaultConfig()
	defaults.AccountMode = session.AccountSim

	mgr := engine.NewManager(engine.Config{
		Registry: strategy.DefaultRegistry(),
		Defaults: defaults,
		Brokers:  engine.NewBrokers(gateway.DefaultConfig(), sim, logger),
		Timing:   session.DefaultTiming(),
		Logger:   logger,
		Version:  "sim-demo",
		Bus:      bus,
	})

	stream, unsub := bus.Subscribe(events.All, 256)
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), *runFor)
	defer cancel()

	info, err := mgr.Start(ctx, engine.StartRequest{StrategyID: *strategyID, TradingMode: *mode, RiskMode: *risk})
	if err != nil {
		logger.Error().Err(err).Msg("start failed")
		os.Exit(1)
	}
	logger.Info().Str("session", info.ID).Str("strategy", info.StrategyID).Msg("=== SIM demo starting ===")

	for {
		select {
		case <-ctx.Done():
			st, _ := mgr.Stop(context.Background(), info.ID)
			logger.Info().Float64("net", st.Ledger.NetBalance).Int("trades", st.Ledger.TotalTrades).Msg("=== SIM demo timed out ===")
			return
		case env := <-stream:
			switch v := env.Data.(type) {
			case session.TradeRecord:
				logger.Info().
					Str("dir", string(v.Direction)).
					Str("result", v.Result).
					Float64("stake", v.Stake).
					Float64("profit", v.Profit).
					Float64("net", v.NetBalance).
					Float64("next", v.NextStake).
					Msg("trade")
			case session.Release:
				logger.Warn().Str("reason", v.Reason).Float64("stake", v.Stake).Msg("contract released")
			case session.Stats:
				if env.Type == events.EventSessionStopped {
					logger.Info().Str("reason", v.StopReason).Float64("net", v.Ledger.NetBalance).Msg("=== SIM demo finished ===")
					return
				}
			}
		}
	}
}
