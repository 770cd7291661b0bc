package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    slot TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    account_mode TEXT NOT NULL,
    config TEXT,
    state TEXT NOT NULL,
    stop_reason TEXT DEFAULT '',
    net_balance REAL DEFAULT 0,
    wins INTEGER DEFAULT 0,
    losses INTEGER DEFAULT 0,
    releases INTEGER DEFAULT 0,
    started_at DATETIME NOT NULL,
    stopped_at DATETIME
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    contract_id INTEGER DEFAULT 0,
    direction TEXT NOT NULL,
    contract_type TEXT NOT NULL,
    result TEXT NOT NULL,
    profit REAL NOT NULL,
    stake REAL NOT NULL,
    symbol TEXT NOT NULL,
    step INTEGER DEFAULT 0,
    next_stake REAL DEFAULT 0,
    win_rate REAL DEFAULT 0,
    net_balance REAL DEFAULT 0,
    created_at DATETIME NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id, created_at);

CREATE TABLE IF NOT EXISTS contract_releases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    contract_id INTEGER DEFAULT 0,
    reason TEXT NOT NULL,
    stake REAL NOT NULL,
    verified INTEGER DEFAULT 0,
    released_at DATETIME NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(id)
);
`

// migration is one forward-only step. Applied steps are tracked in
// PRAGMA user_version.
type migration struct {
	version int
	name    string
	apply   func(*sql.DB) error
}

var migrations = []migration{
	{1, "trades.exit_tick", func(db *sql.DB) error {
		return ensureColumn(db, "trades", "exit_tick", "REAL DEFAULT 0")
	}},
	{2, "idx_releases_session", func(db *sql.DB) error {
		_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_releases_session ON contract_releases(session_id, released_at)`)
		return err
	}},
}

// ApplyMigrations creates the journal tables and runs pending migrations.
// It is safe to call on every start.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var current int
	if err := d.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(d.DB); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := d.DB.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("record schema version %d: %w", m.version, err)
		}
		current = m.version
	}
	return nil
}

// SchemaVersion reports the last applied migration.
func SchemaVersion(d *Database) (int, error) {
	var v int
	err := d.DB.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// ensureColumn adds a column unless a journal written by a newer build
// already has it.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	if n > 0 {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
