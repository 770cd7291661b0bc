package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"binary-core/internal/gateway"
	"binary-core/internal/risk"
	"binary-core/internal/strategy"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopped        = errors.New("session stopped")
)

// State is the session lifecycle position.
type State string

const (
	StateStopped     State = "STOPPED"
	StateConnecting  State = "CONNECTING"
	StateAuthorizing State = "AUTHORIZING"
	StateRunning     State = "RUNNING"
)

// Account modes.
const (
	AccountDemo = "demo"
	AccountReal = "real"
	AccountSim  = "sim"
)

// Stop reasons the session adds on top of the ledger's.
const (
	ReasonManual          = "manual"
	ReasonDailyTradeLimit = "daily_trade_limit"
)

// Release reasons; the gateway flags plus the session's own watchdog.
const (
	ReleaseWatchdog = "watchdog"
)

// Broker is the subset of the gateway the session drives.
type Broker interface {
	SetListener(l gateway.Listener)
	Connect(ctx context.Context) error
	Authorize(ctx context.Context, token string) error
	SubscribeTicks(symbol string) error
	Resubscribe() error
	QuoteAndBuy(spec gateway.ContractSpec) error
	// Abandon drops the trade in flight after the session gave up on it.
	Abandon()
	Balance() float64
	Currency() string
	Close() error
}

// Config is everything a session needs to trade. Risk-mode presets are
// resolved into the martingale fields before Validate.
type Config struct {
	Slot        string `json:"slot"`
	StrategyID  string `json:"strategy_id"`
	Symbol      string `json:"symbol"`
	AccountMode string `json:"account_mode"`
	Token       string `json:"-"`

	BaseStake    float64 `json:"base_stake"`
	ProfitTarget float64 `json:"profit_target"`
	LossLimit    float64 `json:"loss_limit"`
	PayoutRate   float64 `json:"payout_rate"`
	MinBalance   float64 `json:"min_balance"`

	MartingaleEnabled    bool    `json:"martingale_enabled"`
	MartingaleMultiplier float64 `json:"martingale_multiplier"`
	MaxMartingaleSteps   int     `json:"max_martingale_steps"`

	StopPolicy           risk.StopPolicy `json:"stop_policy"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	MaxTradesPerDay      int             `json:"max_trades_per_day"`

	TradingMode string `json:"trading_mode"`
	RiskMode    string `json:"risk_mode"`

	Duration     int    `json:"duration"`
	DurationUnit string `json:"duration_unit"`
}

// DefaultConfig returns the stock session settings.
func DefaultConfig() Config {
	return Config{
		Slot:                 "default",
		StrategyID:           "alpha_bot_1",
		Symbol:               "R_100",
		AccountMode:          AccountDemo,
		BaseStake:            0.35,
		ProfitTarget:         2.0,
		LossLimit:            5.0,
		PayoutRate:           0.88,
		MinBalance:           0.35,
		MartingaleEnabled:    true,
		MartingaleMultiplier: 2.0,
		MaxMartingaleSteps:   3,
		StopPolicy:           risk.StopPolicyValue,
		MaxConsecutiveLosses: 5,
		MaxTradesPerDay:      100,
		TradingMode:          "faster",
		RiskMode:             "optimized",
		Duration:             1,
		DurationUnit:         "t",
	}
}

// ApplyRiskMode copies a preset's martingale settings into c.
func (c *Config) ApplyRiskMode(rm strategy.RiskMode) {
	c.MartingaleEnabled = rm.Martingale
	c.MartingaleMultiplier = rm.Multiplier
	c.MaxMartingaleSteps = rm.MaxSteps
}

// RiskConfig derives the ledger settings.
func (c Config) RiskConfig() risk.RiskConfig {
	return risk.RiskConfig{
		ProfitTarget:         c.ProfitTarget,
		LossLimit:            c.LossLimit,
		MinBalance:           c.MinBalance,
		StopPolicy:           c.StopPolicy,
		MaxConsecutiveLosses: c.MaxConsecutiveLosses,
	}
}

// MinStake is the broker's smallest accepted stake.
const MinStake = 0.35

// Violation is one failed configuration rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rule a Config breaks.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return "invalid session config: " + strings.Join(parts, "; ")
}

// Validate checks c against modes and returns a *ValidationError naming every
// violation, or nil.
func (c Config) Validate(modes strategy.Modes) error {
	var vs []Violation
	add := func(field, format string, args ...any) {
		vs = append(vs, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Symbol) == "" {
		add("symbol", "must not be empty")
	}
	if c.BaseStake < MinStake {
		add("base_stake", "must be >= %.2f", MinStake)
	}
	if c.ProfitTarget <= 0 {
		add("profit_target", "must be > 0")
	}
	if c.LossLimit <= 0 {
		add("loss_limit", "must be > 0")
	}
	if c.PayoutRate <= 0 || c.PayoutRate > 1 {
		add("payout_rate", "must be in (0, 1]")
	}
	if c.MartingaleMultiplier < 1 {
		add("martingale_multiplier", "must be >= 1")
	}
	if c.MaxMartingaleSteps < 0 {
		add("max_martingale_steps", "must be >= 0")
	}
	switch c.StopPolicy {
	case risk.StopPolicyValue, risk.StopPolicyConsecutiveLosses:
	default:
		add("stop_policy", "must be %q or %q", risk.StopPolicyValue, risk.StopPolicyConsecutiveLosses)
	}
	if c.MaxConsecutiveLosses < 1 {
		add("max_consecutive_losses", "must be >= 1")
	}
	if c.MaxTradesPerDay < 0 {
		add("max_trades_per_day", "must be >= 0")
	}
	if c.MinBalance < 0 {
		add("min_balance", "must be >= 0")
	}
	if _, err := modes.TradingMode(c.TradingMode); err != nil {
		add("trading_mode", "unknown mode %q", c.TradingMode)
	}
	if _, err := modes.RiskMode(c.RiskMode); err != nil {
		add("risk_mode", "unknown mode %q", c.RiskMode)
	}
	switch c.AccountMode {
	case AccountDemo, AccountReal:
		if c.Token == "" {
			add("token", "required for %s accounts", c.AccountMode)
		}
	case AccountSim:
	default:
		add("account_mode", "must be demo, real or sim")
	}

	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Violations: vs}
}

// Timing holds the watchdog bounds.
type Timing struct {
	Poll           time.Duration
	ContractWait   time.Duration // force-release after this long waiting
	TickStale      time.Duration
	SignalRecovery time.Duration // signal silence allowed while recovering
	SignalIdle     time.Duration // signal silence allowed otherwise
}

func DefaultTiming() Timing {
	return Timing{
		Poll:           time.Second,
		ContractWait:   45 * time.Second,
		TickStale:      30 * time.Second,
		SignalRecovery: 20 * time.Second,
		SignalIdle:     90 * time.Second,
	}
}

// TradeRecord is one settled contract.
type TradeRecord struct {
	ID           string             `json:"id"`
	SessionID    string             `json:"session_id"`
	ContractID   int64              `json:"contract_id"`
	Direction    strategy.Direction `json:"direction"`
	ContractType string             `json:"contract_type"`
	Result       string             `json:"result"`
	Profit       float64            `json:"profit"`
	Stake        float64            `json:"stake"`
	Symbol       string             `json:"symbol"`
	ExitTick     float64            `json:"exit_tick,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	NextStake    float64            `json:"next_stake"`
	Step         int                `json:"step"`
	WinRateSoFar float64            `json:"win_rate_so_far"`
	NetBalance   float64            `json:"net_balance"`
}

const (
	ResultWin  = "win"
	ResultLoss = "loss"
)

// Release records a pending contract given up without a settlement. Its real
// outcome is unknown and it never enters the ledger.
type Release struct {
	SessionID  string    `json:"session_id"`
	ContractID int64     `json:"contract_id,omitempty"`
	Reason     string    `json:"reason"`
	Stake      float64   `json:"stake"`
	At         time.Time `json:"at"`
}

// Stats is a point-in-time view of one session.
type Stats struct {
	SessionID       string           `json:"session_id"`
	Slot            string           `json:"slot"`
	StrategyID      string           `json:"strategy_id"`
	Symbol          string           `json:"symbol"`
	AccountMode     string           `json:"account_mode"`
	State           State            `json:"state"`
	StopReason      string           `json:"stop_reason,omitempty"`
	Balance         float64          `json:"balance"`
	AccumulatedLoss float64          `json:"accumulated_loss"`
	RecoveryStep    int              `json:"recovery_step"`
	NextStake       float64          `json:"next_stake"`
	TradesToday     int              `json:"trades_today"`
	WaitingContract bool             `json:"waiting_contract"`
	Releases        int              `json:"releases"`
	TickCount       int              `json:"tick_count"`
	StartedAt       time.Time        `json:"started_at"`
	StoppedAt       time.Time        `json:"stopped_at,omitempty"`
	Ledger          risk.RiskMetrics `json:"ledger"`
}

// Observer is notified after the session lock is released, in registration
// order.
type Observer interface {
	OnTrade(TradeRecord)
	OnRelease(Release)
	OnSessionStopped(Stats)
}

// NopObserver can be embedded to implement only some callbacks.
type NopObserver struct{}

func (NopObserver) OnTrade(TradeRecord)    {}
func (NopObserver) OnRelease(Release)      {}
func (NopObserver) OnSessionStopped(Stats) {}
