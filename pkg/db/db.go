package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database is the session journal handle.
type Database struct {
	DB *sql.DB
}

// New opens the journal at path, creating its directory when needed.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: a single journal writer, and :memory: stays one database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	return &Database{DB: db}, nil
}

// dsn adds a busy timeout so the API's reads wait out a journal commit
// instead of failing with SQLITE_BUSY.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// Ping checks the handle is usable.
func (d *Database) Ping(ctx context.Context) error {
	if d == nil || d.DB == nil {
		return errors.New("database is not initialized")
	}
	return d.DB.PingContext(ctx)
}

// Queries returns the read side of the journal.
func (d *Database) Queries() *Queries {
	return &Queries{db: d.DB}
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
