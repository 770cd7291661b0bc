// Package db stores the session journal in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrSessionIDRequired = errors.New("session_id is required")
	ErrNotFound          = errors.New("record not found")
)

// Queries is the read side of the journal.
type Queries struct {
	db *sql.DB
}

// NewQueries creates a new Queries instance.
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

const sessionColumns = `id, slot, strategy_id, symbol, account_mode, config, state,
	COALESCE(stop_reason, ''), net_balance, wins, losses, releases, started_at, stopped_at`

// ----------------------------------------
// Session Queries
// ----------------------------------------

// ListSessions returns the most recently started sessions first.
func (q *Queries) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSession returns one session or ErrNotFound.
func (q *Queries) GetSession(ctx context.Context, id string) (*SessionRow, error) {
	if id == "" {
		return nil, ErrSessionIDRequired
	}
	row := q.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &r, nil
}

// ----------------------------------------
// Trade Queries
// ----------------------------------------

// TradesBySession returns up to limit trades of one session, oldest first.
func (q *Queries) TradesBySession(ctx context.Context, sessionID string, limit int) ([]TradeRow, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, session_id, contract_id, direction, contract_type, result, profit, stake, symbol,
			step, next_stake, win_rate, net_balance, COALESCE(exit_tick, 0), created_at
		FROM (
			SELECT rowid AS seq, * FROM trades WHERE session_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?
		)
		ORDER BY created_at ASC, seq ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.ID, &t.SessionID, &t.ContractID, &t.Direction, &t.ContractType, &t.Result,
			&t.Profit, &t.Stake, &t.Symbol, &t.Step, &t.NextStake, &t.WinRate, &t.NetBalance, &t.ExitTick,
			&t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Release Queries
// ----------------------------------------

// ReleasesBySession returns every unverified and verified release of a session.
func (q *Queries) ReleasesBySession(ctx context.Context, sessionID string) ([]ReleaseRow, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, session_id, contract_id, reason, stake, verified, released_at
		FROM contract_releases
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer rows.Close()

	var out []ReleaseRow
	for rows.Next() {
		var r ReleaseRow
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ContractID, &r.Reason, &r.Stake, &r.Verified, &r.ReleasedAt); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkReleaseVerified records that a release was reconciled by hand.
func (q *Queries) MarkReleaseVerified(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `UPDATE contract_releases SET verified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("verify release: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
