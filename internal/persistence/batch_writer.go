// Package persistence journals sessions, trades and releases to SQLite off
// the trading path.
package persistence

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// backlogFactor bounds the buffer at backlogFactor*batchSize rows while the
// database is unavailable; the oldest rows go first.
const backlogFactor = 20

// WriteOp is one journal statement.
type WriteOp struct {
	Table string
	Query string
	Args  []any
}

// BatchWriter queues journal statements and commits them in batches from a
// background goroutine, so session observers never wait on disk.
type BatchWriter struct {
	db        *sql.DB
	log       zerolog.Logger
	batchSize int
	interval  time.Duration
	timeout   time.Duration

	mu      sync.Mutex
	pending []WriteOp
	closed  bool
	stats   BatchWriterMetrics

	flushMu   sync.Mutex // one transaction at a time, in queue order
	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64            `json:"total_writes"`
	TotalBatches  uint64            `json:"total_batches"`
	TotalErrors   uint64            `json:"total_errors"`
	Dropped       uint64            `json:"dropped"`
	ByTable       map[string]uint64 `json:"by_table"`
	LastBatchSize int               `json:"last_batch_size"`
	LastFlushTime time.Time         `json:"last_flush_time"`
}

// NewBatchWriter starts a writer that commits every interval, or sooner once
// batchSize statements are queued.
func NewBatchWriter(db *sql.DB, batchSize int, interval time.Duration, logger zerolog.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:        db,
		log:       logger.With().Str("component", "batch_writer").Logger(),
		batchSize: batchSize,
		interval:  interval,
		timeout:   5 * time.Second,
		pending:   make([]WriteOp, 0, batchSize),
		stats:     BatchWriterMetrics{ByTable: make(map[string]uint64)},
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.loop()
	return bw
}

// WriteQuery queues one statement. It never blocks on the database.
func (bw *BatchWriter) WriteQuery(table, query string, args ...any) {
	bw.mu.Lock()
	if bw.closed {
		bw.stats.Dropped++
		bw.mu.Unlock()
		bw.log.Warn().Str("table", table).Msg("write after close dropped")
		return
	}
	bw.pending = append(bw.pending, WriteOp{Table: table, Query: query, Args: args})
	if over := len(bw.pending) - backlogFactor*bw.batchSize; over > 0 {
		bw.pending = append(bw.pending[:0:0], bw.pending[over:]...)
		bw.stats.Dropped += uint64(over)
		bw.log.Error().Int("dropped", over).Msg("journal backlog full")
	}
	full := len(bw.pending) >= bw.batchSize
	bw.mu.Unlock()

	if full {
		select {
		case bw.kick <- struct{}{}:
		default:
		}
	}
}

// Flush commits everything queued so far and returns when it is on disk.
func (bw *BatchWriter) Flush() error {
	bw.flushMu.Lock()
	defer bw.flushMu.Unlock()

	bw.mu.Lock()
	ops := bw.pending
	bw.pending = make([]WriteOp, 0, bw.batchSize)
	bw.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	return bw.commit(ops)
}

// commit runs ops in one transaction. A failing statement is logged and
// skipped; the rest of the batch still commits.
func (bw *BatchWriter) commit(ops []WriteOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), bw.timeout)
	defer cancel()

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		bw.record(ops, nil, true)
		bw.log.Error().Err(err).Int("ops", len(ops)).Msg("begin transaction failed")
		return err
	}

	failed := make([]bool, len(ops))
	for i, op := range ops {
		if _, err := tx.ExecContext(ctx, op.Query, op.Args...); err != nil {
			failed[i] = true
			bw.log.Error().Err(err).Str("table", op.Table).Msg("journal write failed, skipped")
		}
	}

	if err := tx.Commit(); err != nil {
		bw.record(ops, nil, true)
		bw.log.Error().Err(err).Int("ops", len(ops)).Msg("commit failed")
		return err
	}
	bw.record(ops, failed, false)
	bw.log.Debug().Int("ops", len(ops)).Msg("flushed")
	return nil
}

func (bw *BatchWriter) record(ops []WriteOp, failed []bool, lost bool) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	bw.stats.TotalBatches++
	bw.stats.LastBatchSize = len(ops)
	bw.stats.LastFlushTime = time.Now()
	if lost {
		bw.stats.TotalErrors += uint64(len(ops))
		return
	}
	for i, op := range ops {
		if failed[i] {
			bw.stats.TotalErrors++
			continue
		}
		bw.stats.TotalWrites++
		bw.stats.ByTable[op.Table]++
	}
}

func (bw *BatchWriter) loop() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-bw.kick:
		case <-bw.done:
			if err := bw.Flush(); err != nil {
				bw.log.Warn().Err(err).Msg("final flush error")
			}
			return
		}
		if err := bw.Flush(); err != nil {
			bw.log.Warn().Err(err).Msg("background flush error")
		}
	}
}

// Pending returns the number of queued statements.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.pending)
}

// GetMetrics returns a copy of the writer's counters.
func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	m := bw.stats
	m.ByTable = make(map[string]uint64, len(bw.stats.ByTable))
	for k, v := range bw.stats.ByTable {
		m.ByTable[k] = v
	}
	return m
}

// Close flushes what is queued and stops the background loop. Later writes
// are dropped.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() {
		bw.mu.Lock()
		bw.closed = true
		bw.mu.Unlock()
		close(bw.done)
	})
	bw.wg.Wait()
	return nil
}
