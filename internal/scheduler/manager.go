package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/gotune/internal/executor"
	"github.com/me/gotune/internal/store"
	"github.com/me/gotune/pkg/model"
)

// ErrTooManyActiveRuns is returned when starting a run would exceed the
// server's active-run capacity.
var ErrTooManyActiveRuns = errors.New("too many active runs")

// Manager owns the schedulers of all active runs. Each run gets its own
// scheduler goroutine; the manager enforces the server-wide cap and
// routes abort requests.
type Manager struct {
	store     store.Store
	registry  *executor.Registry
	logger    *slog.Logger
	maxActive int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*Scheduler
}

// NewManager creates a Manager allowing up to maxActive concurrent runs.
func NewManager(st store.Store, reg *executor.Registry, maxActive int, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     st,
		registry:  reg,
		maxActive: maxActive,
		logger:    logger.With("component", "run-manager"),
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*Scheduler),
	}
}

// StartRun builds a scheduler for the run and starts it in the
// background. The run must be PENDING and already persisted.
func (m *Manager) StartRun(run *model.TuningRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.active) >= m.maxActive {
		return fmt.Errorf("%w: %d already active", ErrTooManyActiveRuns, len(m.active))
	}
	if _, dup := m.active[run.ID]; dup {
		return fmt.Errorf("run %s is already active", run.ID)
	}

	exec, err := m.registry.ForRun(run)
	if err != nil {
		return fmt.Errorf("run %s: %w", run.ID, err)
	}
	sched, err := New(m.store, exec, run, m.logger)
	if err != nil {
		return err
	}

	m.active[run.ID] = sched
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := sched.Run(m.ctx); err != nil {
			m.logger.Error("run ended with error", "run_id", run.ID, "error", err)
		}
		m.mu.Lock()
		delete(m.active, run.ID)
		m.mu.Unlock()
	}()

	return nil
}

// Abort requests cancellation of an active run. It returns false when
// the run is not active (already terminal or unknown).
func (m *Manager) Abort(runID string) bool {
	m.mu.Lock()
	sched, ok := m.active[runID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	sched.Abort()
	return true
}

// ActiveCount returns the number of runs currently in flight.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown aborts all active runs and waits for their schedulers to
// persist terminal state.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("run manager stopped")
}
