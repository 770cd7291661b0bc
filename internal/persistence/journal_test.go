package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"binary-core/internal/risk"
	"binary-core/internal/session"
	"binary-core/internal/strategy"
	"binary-core/pkg/db"
)

func TestJournalWritesThroughBatch(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bw := NewBatchWriter(database.DB, 100, time.Hour, zerolog.Nop())
	j := NewJournal(bw, zerolog.Nop())
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cfg := session.DefaultConfig()
	j.SessionStarted("s1", cfg, session.Stats{State: session.StateRunning, StartedAt: now})
	j.OnTrade(session.TradeRecord{
		ID: "t1", SessionID: "s1", ContractID: 11, Direction: strategy.Call, ContractType: "DIGITODD",
		Result: session.ResultWin, Profit: 0.31, Stake: 0.35, Symbol: "R_100", Timestamp: now,
	})
	j.OnRelease(session.Release{SessionID: "s1", ContractID: 12, Reason: "timeout", Stake: 0.35, At: now})

	if got := bw.Pending(); got != 3 {
		t.Fatalf("Pending=%d, expected 3", got)
	}

	j.OnSessionStopped(session.Stats{
		SessionID: "s1", State: session.StateStopped, StopReason: "take_profit", StoppedAt: now.Add(time.Minute),
		Releases: 1, Ledger: risk.RiskMetrics{NetBalance: 0.31, Wins: 1},
	})
	if got := bw.Pending(); got != 0 {
		t.Fatalf("Pending=%d after stop, expected 0", got)
	}

	q := database.Queries()
	ctx := context.Background()
	s, err := q.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s.State != "STOPPED" || s.StopReason != "take_profit" || s.Wins != 1 || s.Releases != 1 {
		t.Fatalf("session=%+v, expected STOPPED take_profit with 1 win and 1 release", s)
	}
	trades, err := q.TradesBySession(ctx, "s1", 10)
	if err != nil || len(trades) != 1 || trades[0].Profit != 0.31 {
		t.Fatalf("trades=%+v err=%v, expected one 0.31 win", trades, err)
	}
	releases, err := q.ReleasesBySession(ctx, "s1")
	if err != nil || len(releases) != 1 || releases[0].Verified {
		t.Fatalf("releases=%+v err=%v, expected one unverified", releases, err)
	}

	m := bw.GetMetrics()
	if m.TotalWrites != 4 || m.TotalErrors != 0 {
		t.Fatalf("metrics=%+v, expected 4 writes without errors", m)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = bw.Close()
}
