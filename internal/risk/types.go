package risk

import (
	"time"
)

// StopPolicy selects which loss-side stop condition a session uses.
type StopPolicy string

const (
	StopPolicyValue             StopPolicy = "value"
	StopPolicyConsecutiveLosses StopPolicy = "consecutive_losses"
)

// Stop reasons reported by MayOperate, ShouldStop and PreventiveStop.
const (
	ReasonTakeProfit        = "take_profit"
	ReasonStopLoss          = "stop_loss"
	ReasonConsecutiveLosses = "consecutive_losses"
	ReasonPreventiveStop    = "preventive_stop"
	ReasonLowBalance        = "balance_below_minimum"
)

// MaxBalanceFraction caps a single recovery stake relative to the balance.
const MaxBalanceFraction = 0.30

// RiskConfig defines the stop conditions of one session.
type RiskConfig struct {
	ProfitTarget         float64    `json:"profit_target"`
	LossLimit            float64    `json:"loss_limit"`
	MinBalance           float64    `json:"min_balance"`
	StopPolicy           StopPolicy `json:"stop_policy"`
	MaxConsecutiveLosses int        `json:"max_consecutive_losses"`
}

// DefaultConfig mirrors the broker minimums and the stock session targets.
func DefaultConfig() RiskConfig {
	return RiskConfig{
		ProfitTarget:         2.0,
		LossLimit:            5.0,
		MinBalance:           0.35,
		StopPolicy:           StopPolicyValue,
		MaxConsecutiveLosses: 5,
	}
}

// RiskMetrics is a point-in-time copy of the ledger.
type RiskMetrics struct {
	NetBalance float64 `json:"net_balance"`
	GrossWin   float64 `json:"gross_win"`
	GrossLoss  float64 `json:"gross_loss"`

	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"` // percent

	ConsecutiveWins      int `json:"consecutive_wins"`
	ConsecutiveLosses    int `json:"consecutive_losses"`
	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`

	LossSinceLastWin float64 `json:"loss_since_last_win"`

	ProfitTarget     float64 `json:"profit_target"`
	LossLimit        float64 `json:"loss_limit"`
	DistanceToTarget float64 `json:"distance_to_target"`
	DistanceToLimit  float64 `json:"distance_to_limit"`

	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
