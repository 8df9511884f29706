package executor

import (
	"fmt"
	"log/slog"

	"github.com/me/gotune/pkg/model"
)

// Factory builds an Executor bound to one tuning run. The trial command
// and working directory come from the run, so executors are per-run.
type Factory func(run *model.TuningRun) (Executor, error)

// Registry maps ExecutorType values to their factories. Registration
// happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	factories map[model.ExecutorType]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[model.ExecutorType]Factory),
		logger:    logger.With("component", "executor-registry"),
	}
}

// Register adds a factory for the given executor type.
func (r *Registry) Register(t model.ExecutorType, f Factory) {
	r.factories[t] = f
	r.logger.Info("executor registered", "type", t)
}

// ForRun builds the executor the run's configuration names. An empty
// executor type defaults to local.
func (r *Registry) ForRun(run *model.TuningRun) (Executor, error) {
	t := run.Config.Executor
	if t == "" {
		t = model.ExecutorTypeLocal
	}
	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("no executor registered for type %q", t)
	}
	return f(run)
}
