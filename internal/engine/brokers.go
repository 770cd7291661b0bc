package engine

import (
	"github.com/rs/zerolog"

	"binary-core/internal/gateway"
	"binary-core/internal/market"
	"binary-core/internal/session"
	"binary-core/internal/strategy"
)

// NewBrokers returns the production factory: a Deriv gateway for demo and
// real accounts, a local simulator for sim. The simulator settles at the
// strategy's expected win rate.
func NewBrokers(gw gateway.Config, sim market.SimConfig, logger zerolog.Logger) BrokerFactory {
	return func(cfg session.Config, info strategy.Info) session.Broker {
		log := logger.With().Str("slot", cfg.Slot).Logger()
		if cfg.AccountMode == session.AccountSim {
			sc := sim
			sc.PayoutRate = cfg.PayoutRate
			if info.ExpectedWinRate > 0 {
				sc.WinRate = info.ExpectedWinRate
			}
			return market.NewSimulator(sc, log)
		}
		return gateway.New(gw, log)
	}
}
