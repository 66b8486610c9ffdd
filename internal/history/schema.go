package history

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		protocol TEXT NOT NULL,
		action TEXT NOT NULL,
		wallet TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		tx_hash TEXT NOT NULL DEFAULT '',
		gas_used INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		executed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_protocol_time
		ON executions(protocol, executed_at);

	CREATE INDEX IF NOT EXISTS idx_executions_wallet_time
		ON executions(wallet, executed_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
