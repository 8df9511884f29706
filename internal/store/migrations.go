package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all gotune tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tuning_runs (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		state         TEXT NOT NULL DEFAULT 'PENDING',
		config        TEXT NOT NULL,
		best_trial_id TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		started_at    TEXT,
		completed_at  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS trials (
		id              TEXT PRIMARY KEY,
		run_id          TEXT NOT NULL REFERENCES tuning_runs(id),
		seq             INTEGER NOT NULL,
		config          TEXT NOT NULL,
		state           TEXT NOT NULL DEFAULT 'PENDING',
		final_value     REAL,
		failure_message TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		started_at      TEXT,
		ended_at        TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS trial_metrics (
		trial_id    TEXT NOT NULL REFERENCES trials(id),
		interval    INTEGER NOT NULL,
		value       REAL NOT NULL,
		reported_at TEXT NOT NULL,
		UNIQUE(trial_id, interval)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_state ON tuning_runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_trials_run_id ON trials(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trials_state ON trials(run_id, state)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_trial ON trial_metrics(trial_id, interval)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
