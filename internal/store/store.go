// Package store defines and implements the persistence layer for
// tuning runs, trials, and metric history.
package store

import (
	"context"

	"github.com/me/gotune/pkg/model"
)

// Store defines the persistence layer for gotune entities.
// Get methods return (nil, nil) when the row does not exist.
type Store interface {
	// Tuning run CRUD
	CreateRun(ctx context.Context, run *model.TuningRun) error
	GetRun(ctx context.Context, id string) (*model.TuningRun, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.TuningRun, int, error)
	UpdateRun(ctx context.Context, run *model.TuningRun) error

	// Trial operations
	CreateTrial(ctx context.Context, trial *model.Trial) error
	GetTrial(ctx context.Context, id string) (*model.Trial, error)
	ListTrialsByRun(ctx context.Context, runID string) ([]*model.Trial, error)
	ListTrialsByState(ctx context.Context, runID string, state model.TrialState) ([]*model.Trial, error)
	UpdateTrial(ctx context.Context, trial *model.Trial) error

	// Metric history (append-only)
	AppendMetric(ctx context.Context, report *model.MetricReport) error
	ListMetrics(ctx context.Context, trialID string) ([]*model.MetricReport, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
