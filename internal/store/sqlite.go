package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/gotune/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests and for the
// one-shot runner).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Tuning run CRUD ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.TuningRun) error {
	s.logger.Debug("sql", "op", "insert", "table", "tuning_runs", "id", run.ID)

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tuning_runs (id, name, state, config, best_trial_id, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.State.String(), string(configJSON), run.BestTrialID,
		run.CreatedAt.Format(time.RFC3339Nano), formatTimePtr(run.StartedAt), formatTimePtr(run.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.TuningRun, error) {
	s.logger.Debug("sql", "op", "select", "table", "tuning_runs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, state, config, best_trial_id, created_at, started_at, completed_at
		 FROM tuning_runs WHERE id = ?`, id)

	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.TuningRun, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "tuning_runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where, args := "", []any{}
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tuning_runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, state, config, best_trial_id, created_at, started_at, completed_at
		 FROM tuning_runs`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.TuningRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.TuningRun) error {
	s.logger.Debug("sql", "op", "update", "table", "tuning_runs", "id", run.ID, "state", run.State)

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tuning_runs SET name=?, state=?, config=?, best_trial_id=?, started_at=?, completed_at=? WHERE id=?`,
		run.Name, run.State.String(), string(configJSON), run.BestTrialID,
		formatTimePtr(run.StartedAt), formatTimePtr(run.CompletedAt), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("tuning run %s not found", run.ID)
	}
	return nil
}

func scanRun(scan func(dest ...any) error) (*model.TuningRun, error) {
	var run model.TuningRun
	var state, configJSON, createdAt string
	var startedAt, completedAt sql.NullString

	if err := scan(&run.ID, &run.Name, &state, &configJSON, &run.BestTrialID, &createdAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	run.StartedAt = parseTimePtr(startedAt)
	run.CompletedAt = parseTimePtr(completedAt)
	return &run, nil
}

// --- Trial operations ---

func (s *SQLiteStore) CreateTrial(ctx context.Context, trial *model.Trial) error {
	s.logger.Debug("sql", "op", "insert", "table", "trials", "id", trial.ID)

	configJSON, err := json.Marshal(trial.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trials (id, run_id, seq, config, state, final_value, failure_message, created_at, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trial.ID, trial.RunID, trial.Seq, string(configJSON), trial.State.String(),
		trial.FinalValue, trial.FailureMessage,
		trial.CreatedAt.Format(time.RFC3339Nano), formatTimePtr(trial.StartedAt), formatTimePtr(trial.EndedAt),
	)
	return err
}

func (s *SQLiteStore) GetTrial(ctx context.Context, id string) (*model.Trial, error) {
	s.logger.Debug("sql", "op", "select", "table", "trials", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, seq, config, state, final_value, failure_message, created_at, started_at, ended_at
		 FROM trials WHERE id = ?`, id)

	trial, err := scanTrial(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return trial, err
}

func (s *SQLiteStore) ListTrialsByRun(ctx context.Context, runID string) ([]*model.Trial, error) {
	s.logger.Debug("sql", "op", "list", "table", "trials", "run_id", runID)
	return s.listTrials(ctx,
		`SELECT id, run_id, seq, config, state, final_value, failure_message, created_at, started_at, ended_at
		 FROM trials WHERE run_id = ? ORDER BY seq`, runID)
}

func (s *SQLiteStore) ListTrialsByState(ctx context.Context, runID string, state model.TrialState) ([]*model.Trial, error) {
	s.logger.Debug("sql", "op", "list_by_state", "table", "trials", "run_id", runID, "state", state)
	return s.listTrials(ctx,
		`SELECT id, run_id, seq, config, state, final_value, failure_message, created_at, started_at, ended_at
		 FROM trials WHERE run_id = ? AND state = ? ORDER BY seq`, runID, state.String())
}

func (s *SQLiteStore) listTrials(ctx context.Context, query string, args ...any) ([]*model.Trial, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trials []*model.Trial
	for rows.Next() {
		trial, err := scanTrial(rows.Scan)
		if err != nil {
			return nil, err
		}
		trials = append(trials, trial)
	}
	return trials, rows.Err()
}

func (s *SQLiteStore) UpdateTrial(ctx context.Context, trial *model.Trial) error {
	s.logger.Debug("sql", "op", "update", "table", "trials", "id", trial.ID, "state", trial.State)

	configJSON, err := json.Marshal(trial.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE trials SET config=?, state=?, final_value=?, failure_message=?, started_at=?, ended_at=? WHERE id=?`,
		string(configJSON), trial.State.String(), trial.FinalValue, trial.FailureMessage,
		formatTimePtr(trial.StartedAt), formatTimePtr(trial.EndedAt), trial.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("trial %s not found", trial.ID)
	}
	return nil
}

func scanTrial(scan func(dest ...any) error) (*model.Trial, error) {
	var trial model.Trial
	var state, configJSON, createdAt string
	var finalValue sql.NullFloat64
	var startedAt, endedAt sql.NullString

	if err := scan(&trial.ID, &trial.RunID, &trial.Seq, &configJSON, &state,
		&finalValue, &trial.FailureMessage, &createdAt, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	trial.State = model.TrialState(state)
	if err := json.Unmarshal([]byte(configJSON), &trial.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if finalValue.Valid {
		trial.FinalValue = &finalValue.Float64
	}
	trial.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	trial.StartedAt = parseTimePtr(startedAt)
	trial.EndedAt = parseTimePtr(endedAt)
	return &trial, nil
}

// --- Metric history ---

func (s *SQLiteStore) AppendMetric(ctx context.Context, report *model.MetricReport) error {
	s.logger.Debug("sql", "op", "insert", "table", "trial_metrics", "trial_id", report.TrialID, "interval", report.Interval)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trial_metrics (trial_id, interval, value, reported_at) VALUES (?, ?, ?, ?)`,
		report.TrialID, report.Interval, report.Value, report.ReportedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, trialID string) ([]*model.MetricReport, error) {
	s.logger.Debug("sql", "op", "list", "table", "trial_metrics", "trial_id", trialID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT trial_id, interval, value, reported_at FROM trial_metrics WHERE trial_id = ? ORDER BY interval`,
		trialID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*model.MetricReport
	for rows.Next() {
		var r model.MetricReport
		var reportedAt string
		if err := rows.Scan(&r.TrialID, &r.Interval, &r.Value, &reportedAt); err != nil {
			return nil, err
		}
		r.ReportedAt, _ = time.Parse(time.RFC3339Nano, reportedAt)
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

// --- helpers ---

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
