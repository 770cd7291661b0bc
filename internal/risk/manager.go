package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Manager is the per-session risk ledger. It is only mutated through RecordTrade.
type Manager struct {
	config RiskConfig
	mu     sync.RWMutex

	grossWin         decimal.Decimal
	grossLoss        decimal.Decimal
	lossSinceLastWin decimal.Decimal

	wins                 int
	losses               int
	consecutiveWins      int
	consecutiveLosses    int
	maxConsecutiveWins   int
	maxConsecutiveLosses int

	startedAt time.Time
	now       func() time.Time
}

// NewInMemory creates a ledger for a single session.
func NewInMemory(cfg RiskConfig) *Manager {
	if cfg.StopPolicy == "" {
		cfg.StopPolicy = StopPolicyValue
	}
	return &Manager{
		config:    cfg,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// SetClock replaces the time source and restarts the session clock from it.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	m.startedAt = now()
}

// GetConfig returns a copy of the stop configuration.
func (m *Manager) GetConfig() RiskConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// RecordTrade books one settled contract. Profit sign is taken from won, not from profit.
func (m *Manager) RecordTrade(profit float64, won bool) {
	amount := decimal.NewFromFloat(math.Abs(profit))

	m.mu.Lock()
	defer m.mu.Unlock()

	if won {
		m.wins++
		m.grossWin = m.grossWin.Add(amount)
		m.consecutiveWins++
		m.consecutiveLosses = 0
		m.lossSinceLastWin = decimal.Zero
		if m.consecutiveWins > m.maxConsecutiveWins {
			m.maxConsecutiveWins = m.consecutiveWins
		}
		return
	}

	m.losses++
	m.grossLoss = m.grossLoss.Add(amount)
	m.lossSinceLastWin = m.lossSinceLastWin.Add(amount)
	m.consecutiveLosses++
	m.consecutiveWins = 0
	if m.consecutiveLosses > m.maxConsecutiveLosses {
		m.maxConsecutiveLosses = m.consecutiveLosses
	}
}

// ShouldStop reports whether a take-profit or loss-side stop condition is met.
func (m *Manager) ShouldStop() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shouldStopLocked()
}

func (m *Manager) shouldStopLocked() (bool, string) {
	net := m.grossWin.Sub(m.grossLoss)
	if m.config.ProfitTarget > 0 && net.GreaterThanOrEqual(decimal.NewFromFloat(m.config.ProfitTarget)) {
		return true, ReasonTakeProfit
	}

	switch m.config.StopPolicy {
	case StopPolicyConsecutiveLosses:
		if m.config.MaxConsecutiveLosses > 0 && m.consecutiveLosses >= m.config.MaxConsecutiveLosses {
			return true, ReasonConsecutiveLosses
		}
	default:
		// Loss since the last win, not abs(net): a profitable session is never
		// halted by a drawdown that has not erased a win.
		if m.config.LossLimit > 0 && m.lossSinceLastWin.GreaterThanOrEqual(decimal.NewFromFloat(m.config.LossLimit)) {
			return true, ReasonStopLoss
		}
	}
	return false, ""
}

// MayOperate is false when the balance is below the minimum or a stop condition holds.
func (m *Manager) MayOperate(balance float64) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if balance < m.config.MinBalance {
		return false, ReasonLowBalance
	}
	if stop, reason := m.shouldStopLocked(); stop {
		return false, reason
	}
	return true, ""
}

// PreventiveStop reports whether placing stake on top of accumulatedLoss would
// breach the loss limit. Only the value policy has a money limit to breach.
func (m *Manager) PreventiveStop(accumulatedLoss, stake float64) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config.StopPolicy != StopPolicyValue || m.config.LossLimit <= 0 {
		return false, ""
	}
	exposure := decimal.NewFromFloat(accumulatedLoss).Add(decimal.NewFromFloat(stake))
	if exposure.GreaterThan(decimal.NewFromFloat(m.config.LossLimit)) {
		return true, ReasonPreventiveStop
	}
	return false, ""
}

// WinRate returns the percentage of settled trades that won.
func (m *Manager) WinRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return winRate(m.wins, m.losses)
}

// GetMetrics returns a snapshot of the ledger.
func (m *Manager) GetMetrics() RiskMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	net := m.grossWin.Sub(m.grossLoss)
	target := decimal.NewFromFloat(m.config.ProfitTarget)
	limit := decimal.NewFromFloat(m.config.LossLimit)

	return RiskMetrics{
		NetBalance:           net.Round(2).InexactFloat64(),
		GrossWin:             m.grossWin.Round(2).InexactFloat64(),
		GrossLoss:            m.grossLoss.Round(2).InexactFloat64(),
		Wins:                 m.wins,
		Losses:               m.losses,
		TotalTrades:          m.wins + m.losses,
		WinRate:              math.Round(winRate(m.wins, m.losses)*100) / 100,
		ConsecutiveWins:      m.consecutiveWins,
		ConsecutiveLosses:    m.consecutiveLosses,
		MaxConsecutiveWins:   m.maxConsecutiveWins,
		MaxConsecutiveLosses: m.maxConsecutiveLosses,
		LossSinceLastWin:     m.lossSinceLastWin.Round(2).InexactFloat64(),
		ProfitTarget:         m.config.ProfitTarget,
		LossLimit:            m.config.LossLimit,
		DistanceToTarget:     target.Sub(net).Round(2).InexactFloat64(),
		DistanceToLimit:      limit.Sub(m.lossSinceLastWin).Round(2).InexactFloat64(),
		StartedAt:            m.startedAt,
		Duration:             formatDuration(m.now().Sub(m.startedAt)),
	}
}

func winRate(wins, losses int) float64 {
	total := wins + losses
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
}
