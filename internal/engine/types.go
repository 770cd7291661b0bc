package engine

import (
	"errors"
	"time"

	"binary-core/internal/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSlotBusy        = errors.New("slot already has a running session")
	ErrStartFailed     = errors.New("session failed to start")
)

// StartRequest is a session start with optional overrides of the defaults.
// Nil pointers and empty strings keep the configured default.
type StartRequest struct {
	Slot        string `json:"slot"`
	StrategyID  string `json:"strategyId"`
	Symbol      string `json:"symbol"`
	AccountMode string `json:"accountMode"`
	Token       string `json:"token"`

	BaseStake    *float64 `json:"baseStake"`
	ProfitTarget *float64 `json:"profitTarget"`
	LossLimit    *float64 `json:"lossLimit"`
	PayoutRate   *float64 `json:"payoutRate"`
	MinBalance   *float64 `json:"minBalance"`

	MartingaleEnabled    *bool    `json:"martingaleEnabled"`
	MartingaleMultiplier *float64 `json:"martingaleMultiplier"`
	MaxMartingaleSteps   *int     `json:"maxMartingaleSteps"`

	StopLossPolicy       string `json:"stopLossPolicy"` // value | consecutiveLosses
	MaxConsecutiveLosses *int   `json:"maxConsecutiveLosses"`
	MaxTradesPerDay      *int   `json:"maxTradesPerDay"`

	TradingMode string `json:"tradingMode"`
	RiskMode    string `json:"riskMode"`
}

// SessionInfo is the listing view of a session.
type SessionInfo struct {
	ID          string        `json:"id"`
	Slot        string        `json:"slot"`
	StrategyID  string        `json:"strategy_id"`
	Symbol      string        `json:"symbol"`
	AccountMode string        `json:"account_mode"`
	State       session.State `json:"state"`
	StopReason  string        `json:"stop_reason,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	Version        string    `json:"version"`
	AccountMode    string    `json:"account_mode"`
	ActiveSessions int       `json:"active_sessions"`
	Strategies     int       `json:"strategies"`
	ServerTime     time.Time `json:"server_time"`
}
