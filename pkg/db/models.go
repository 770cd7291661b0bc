package db

import (
	"database/sql"
	"time"
)

// SessionRow is one journaled session.
type SessionRow struct {
	ID          string     `json:"id"`
	Slot        string     `json:"slot"`
	StrategyID  string     `json:"strategy_id"`
	Symbol      string     `json:"symbol"`
	AccountMode string     `json:"account_mode"`
	Config      string     `json:"config,omitempty"`
	State       string     `json:"state"`
	StopReason  string     `json:"stop_reason,omitempty"`
	NetBalance  float64    `json:"net_balance"`
	Wins        int        `json:"wins"`
	Losses      int        `json:"losses"`
	Releases    int        `json:"releases"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
}

// TradeRow is one settled contract.
type TradeRow struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	ContractID   int64     `json:"contract_id"`
	Direction    string    `json:"direction"`
	ContractType string    `json:"contract_type"`
	Result       string    `json:"result"`
	Profit       float64   `json:"profit"`
	Stake        float64   `json:"stake"`
	Symbol       string    `json:"symbol"`
	Step         int       `json:"step"`
	NextStake    float64   `json:"next_stake"`
	WinRate      float64   `json:"win_rate"`
	NetBalance   float64   `json:"net_balance"`
	ExitTick     float64   `json:"exit_tick"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReleaseRow is a contract given up without a settlement. Verified stays
// false until someone reconciles it against the broker statement.
type ReleaseRow struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	ContractID int64     `json:"contract_id"`
	Reason     string    `json:"reason"`
	Stake      float64   `json:"stake"`
	Verified   bool      `json:"verified"`
	ReleasedAt time.Time `json:"released_at"`
}

// Write statements, shared by the journal and tests.
const (
	InsertSessionSQL = `
		INSERT INTO sessions (id, slot, strategy_id, symbol, account_mode, config, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state`

	FinishSessionSQL = `
		UPDATE sessions
		SET state = ?, stop_reason = ?, net_balance = ?, wins = ?, losses = ?, releases = ?, stopped_at = ?
		WHERE id = ?`

	InsertTradeSQL = `
		INSERT OR IGNORE INTO trades (id, session_id, contract_id, direction, contract_type, result,
			profit, stake, symbol, step, next_stake, win_rate, net_balance, exit_tick, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	InsertReleaseSQL = `
		INSERT INTO contract_releases (session_id, contract_id, reason, stake, released_at)
		VALUES (?, ?, ?, ?, ?)`
)

func scanSession(s interface{ Scan(...any) error }) (SessionRow, error) {
	var (
		r       SessionRow
		cfg     sql.NullString
		stopped sql.NullTime
	)
	err := s.Scan(&r.ID, &r.Slot, &r.StrategyID, &r.Symbol, &r.AccountMode, &cfg, &r.State,
		&r.StopReason, &r.NetBalance, &r.Wins, &r.Losses, &r.Releases, &r.StartedAt, &stopped)
	if err != nil {
		return r, err
	}
	r.Config = cfg.String
	if stopped.Valid {
		t := stopped.Time
		r.StoppedAt = &t
	}
	return r, nil
}
