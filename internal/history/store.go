// Package history persists per-task execution outcomes to SQLite. It is the
// reference implementation of the scheduler's MetricsSink: the live working
// set drops tasks once they finish, and this store is what retains them.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onchainops/chainsched/internal/scheduler"
)

// Entry is one persisted execution outcome.
type Entry struct {
	ID         int64
	TaskID     string
	Protocol   string
	Action     string
	Wallet     string
	Status     scheduler.Status
	Attempts   int
	TxHash     string
	GasUsed    int64
	Duration   time.Duration
	Err        string
	ExecutedAt time.Time
}

// ProtocolSummary aggregates outcomes for one protocol.
type ProtocolSummary struct {
	Protocol  string
	Completed int
	Failed    int
	GasUsed   int64
}

// Store is a SQLite-backed execution history.
type Store struct {
	db *sql.DB
}

// NewStore creates a store at the given path. Creates parent directories if
// needed. Enables WAL mode and a busy timeout.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newStore(ctx, db)
}

// memStoreSeq distinguishes in-memory databases so tests don't share state.
var memStoreSeq atomic.Int64

// NewMemoryStore creates an in-memory store for testing.
// Uses a shared cache so the pool's connections see the same database.
func NewMemoryStore(ctx context.Context) (*Store, error) {
	name := fmt.Sprintf("file:chainsched-mem-%d?mode=memory&cache=shared", memStoreSeq.Add(1))
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return newStore(ctx, db)
}

func newStore(ctx context.Context, db *sql.DB) (*Store, error) {
	// Single writer; the scheduler records serially enough that contention
	// is not a concern.
	db.SetMaxOpenConns(2)

	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTaskExecution implements scheduler.MetricsSink.
// executed_at is stored as unix seconds so it round-trips cleanly.
func (s *Store) RecordTaskExecution(ctx context.Context, rec scheduler.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (task_id, protocol, action, wallet, status, attempts, tx_hash, gas_used, duration_ms, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.TaskID, rec.Protocol, rec.Action, rec.Wallet, string(rec.Status), rec.Attempts,
		rec.TxHash, rec.GasUsed, rec.Duration.Milliseconds(), rec.Err, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// ListByProtocol returns executions for one protocol, newest first.
func (s *Store) ListByProtocol(ctx context.Context, proto string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, protocol, action, wallet, status, attempts, tx_hash, gas_used, duration_ms, error, executed_at
		FROM executions
		WHERE protocol = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, proto, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByWallet returns executions for one wallet, newest first.
func (s *Store) ListByWallet(ctx context.Context, wallet string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, protocol, action, wallet, status, attempts, tx_hash, gas_used, duration_ms, error, executed_at
		FROM executions
		WHERE wallet = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Summary returns per-protocol completion counts and gas totals.
func (s *Store) Summary(ctx context.Context) ([]ProtocolSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT protocol,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			COALESCE(SUM(gas_used), 0)
		FROM executions
		GROUP BY protocol
		ORDER BY protocol
	`, string(scheduler.StatusCompleted), string(scheduler.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	var summaries []ProtocolSummary
	for rows.Next() {
		var sum ProtocolSummary
		if err := rows.Scan(&sum.Protocol, &sum.Completed, &sum.Failed, &sum.GasUsed); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			status     string
			durationMS int64
			executedAt int64
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Protocol, &e.Action, &e.Wallet, &status,
			&e.Attempts, &e.TxHash, &e.GasUsed, &durationMS, &e.Err, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		e.Status = scheduler.Status(status)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.ExecutedAt = time.Unix(executedAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
