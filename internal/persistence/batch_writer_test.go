package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"binary-core/pkg/db"
)

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	return database
}

func TestFailingStatementIsSkipped(t *testing.T) {
	database := newTestDB(t)
	bw := NewBatchWriter(database.DB, 100, time.Hour, zerolog.Nop())
	defer bw.Close()

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	bw.WriteQuery("contract_releases", db.InsertReleaseSQL, "s1", int64(1), "timeout", 0.35, at)
	bw.WriteQuery("nope", "INSERT INTO nope VALUES (1)")
	bw.WriteQuery("contract_releases", db.InsertReleaseSQL, "s1", int64(2), "watchdog", 0.70, at)

	if err := bw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	m := bw.GetMetrics()
	if m.TotalWrites != 2 || m.TotalErrors != 1 || m.TotalBatches != 1 {
		t.Fatalf("metrics=%+v, expected 2 writes, 1 error, 1 batch", m)
	}
	if m.ByTable["contract_releases"] != 2 {
		t.Fatalf("ByTable=%v, expected 2 contract_releases", m.ByTable)
	}

	releases, err := database.Queries().ReleasesBySession(context.Background(), "s1")
	if err != nil || len(releases) != 2 {
		t.Fatalf("releases=%d err=%v, expected 2", len(releases), err)
	}
}

func TestWriteAfterCloseIsDropped(t *testing.T) {
	database := newTestDB(t)
	bw := NewBatchWriter(database.DB, 100, time.Hour, zerolog.Nop())

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	bw.WriteQuery("contract_releases", db.InsertReleaseSQL, "s1", int64(1), "timeout", 0.35, at)
	if err := bw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := bw.Pending(); got != 0 {
		t.Fatalf("Pending=%d after Close, expected 0", got)
	}

	bw.WriteQuery("contract_releases", db.InsertReleaseSQL, "s1", int64(2), "timeout", 0.35, at)
	m := bw.GetMetrics()
	if m.TotalWrites != 1 || m.Dropped != 1 {
		t.Fatalf("metrics=%+v, expected 1 write and 1 drop", m)
	}
}
