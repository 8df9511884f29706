// Package scheduler drives tuning runs: it pulls configurations from
// the sampler, dispatches trials to the executor, folds metric reports
// into the history ledger, applies the early-termination policy, and
// finalizes the run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/gotune/internal/executor"
	"github.com/me/gotune/internal/objective"
	"github.com/me/gotune/internal/policy"
	"github.com/me/gotune/internal/sampler"
	"github.com/me/gotune/internal/store"
	"github.com/me/gotune/pkg/model"
	"github.com/me/gotune/pkg/space"
)

type eventKind int

const (
	eventMetric eventKind = iota
	eventFinished
)

type schedEvent struct {
	kind     eventKind
	trialID  string
	interval int
	metrics  map[string]float64
	state    model.TrialState
	message  string
}

// Scheduler runs one tuning run to completion. A single control
// goroutine owns all trial and history state; the executor delivers
// events through the EventSink methods, which serialize onto the event
// channel. Instances share nothing.
type Scheduler struct {
	store     store.Store
	exec      executor.Executor
	run       *model.TuningRun
	sampler   sampler.Sampler
	observer  sampler.Observer
	policy    policy.Policy
	objective *objective.Evaluator
	logger    *slog.Logger

	events  chan schedEvent
	abortCh chan struct{}
	doneCh  chan struct{}

	// State below is owned by the control goroutine.
	trials       map[string]*model.Trial
	order        []string
	history      map[string][]policy.Point
	lastInterval map[string]int
	slots        map[string]struct{}
	dispatched   int
	exhausted    bool
	aborting     bool
}

// New builds a scheduler for the run. The run's configuration must
// already be validated; construction still fails on search-space or
// strategy problems the validation cannot see (for example a grid over
// a continuous parameter).
func New(st store.Store, exec executor.Executor, run *model.TuningRun, logger *slog.Logger) (*Scheduler, error) {
	ss, err := space.New(run.Config.Space)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	smp, err := sampler.New(run.Config.Sampling, ss, run.Config.Goal)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}

	var pol policy.Policy
	if run.Config.Policy != nil {
		pol, err = policy.New(run.Config.Policy)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
	}

	obj, err := objective.New(run.Config.Metric, run.Config.Objective)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}

	s := &Scheduler{
		store:        st,
		exec:         exec,
		run:          run,
		sampler:      smp,
		policy:       pol,
		objective:    obj,
		logger:       logger.With("component", "scheduler", "run_id", run.ID),
		events:       make(chan schedEvent, 256),
		abortCh:      make(chan struct{}),
		doneCh:       make(chan struct{}),
		trials:       make(map[string]*model.Trial),
		history:      make(map[string][]policy.Point),
		lastInterval: make(map[string]int),
		slots:        make(map[string]struct{}),
	}
	if obs, ok := smp.(sampler.Observer); ok {
		s.observer = obs
	}
	return s, nil
}

// Metric implements executor.EventSink. Safe for concurrent use; events
// arriving after the run finished are dropped.
func (s *Scheduler) Metric(trialID string, interval int, metrics map[string]float64) {
	select {
	case s.events <- schedEvent{kind: eventMetric, trialID: trialID, interval: interval, metrics: metrics}:
	case <-s.doneCh:
	}
}

// Finished implements executor.EventSink.
func (s *Scheduler) Finished(trialID string, state model.TrialState, message string) {
	select {
	case s.events <- schedEvent{kind: eventFinished, trialID: trialID, state: state, message: message}:
	case <-s.doneCh:
	}
}

// Abort requests run cancellation. It returns immediately; Done closes
// once the run reached its terminal state.
func (s *Scheduler) Abort() {
	select {
	case s.abortCh <- struct{}{}:
	case <-s.doneCh:
	}
}

// Done closes when the run reached a terminal state.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

// Run executes the tuning run and blocks until it is terminal. Context
// cancellation aborts the run.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.doneCh)

	// Persistence must survive ctx cancellation so an aborted run still
	// reaches the store in its terminal state.
	opCtx := context.WithoutCancel(ctx)

	now := time.Now().UTC()
	s.run.State = model.RunStateRunning
	s.run.StartedAt = &now
	if err := s.store.UpdateRun(opCtx, s.run); err != nil {
		return fmt.Errorf("run %s: mark running: %w", s.run.ID, err)
	}
	s.logger.Info("run started",
		"strategy", s.run.Config.Sampling.Strategy,
		"max_total", s.run.Config.MaxTotalRuns,
		"max_concurrent", s.run.Config.MaxConcurrentRuns,
	)

	s.fill(opCtx)
	if s.finished() {
		return s.finalize(opCtx)
	}

	for {
		select {
		case <-ctx.Done():
			s.beginAbort(opCtx)
		case <-s.abortCh:
			s.beginAbort(opCtx)
		case ev := <-s.events:
			switch ev.kind {
			case eventMetric:
				s.handleMetric(opCtx, ev)
			case eventFinished:
				s.handleFinished(opCtx, ev)
			}
		}
		if s.finished() {
			return s.finalize(opCtx)
		}
	}
}

// fill dispatches new trials until the concurrency limit, the total
// budget, or sampler exhaustion stops it.
func (s *Scheduler) fill(ctx context.Context) {
	cfg := &s.run.Config
	for !s.aborting && !s.exhausted &&
		s.dispatched < cfg.MaxTotalRuns &&
		len(s.slots) < cfg.MaxConcurrentRuns {

		params, err := s.sampler.Next()
		if err != nil {
			if !errors.Is(err, model.ErrExhausted) {
				s.logger.Error("sampler error, stopping dispatch", "error", err)
			} else {
				s.logger.Info("search space exhausted", "dispatched", s.dispatched)
			}
			s.exhausted = true
			return
		}

		now := time.Now().UTC()
		trial := &model.Trial{
			ID:        "trial_" + uuid.New().String(),
			RunID:     s.run.ID,
			Seq:       s.dispatched + 1,
			Config:    params,
			State:     model.TrialStatePending,
			CreatedAt: now,
		}
		if err := s.store.CreateTrial(ctx, trial); err != nil {
			s.logger.Error("create trial", "trial_id", trial.ID, "error", err)
			s.exhausted = true
			return
		}
		s.dispatched++
		s.trials[trial.ID] = trial
		s.order = append(s.order, trial.ID)

		trial.State = model.TrialStateRunning
		trial.StartedAt = &now
		if err := s.exec.Dispatch(ctx, trial, s); err != nil {
			s.logger.Error("dispatch trial", "trial_id", trial.ID, "error", err)
			s.finishTrial(ctx, trial, model.TrialStateFailed, err.Error())
			continue
		}
		if err := s.store.UpdateTrial(ctx, trial); err != nil {
			s.logger.Error("update trial", "trial_id", trial.ID, "error", err)
		}
		s.slots[trial.ID] = struct{}{}
		s.logger.Debug("trial dispatched", "trial_id", trial.ID, "seq", trial.Seq, "config", trial.Config)
	}
}

// handleMetric folds one report into the history ledger and applies the
// policy when the interval is an evaluation point.
func (s *Scheduler) handleMetric(ctx context.Context, ev schedEvent) {
	trial, ok := s.trials[ev.trialID]
	if !ok || trial.State.IsTerminal() {
		s.logger.Debug("dropping report for terminal trial", "trial_id", ev.trialID, "interval", ev.interval)
		return
	}
	if ev.interval <= s.lastInterval[ev.trialID] {
		s.logger.Debug("dropping out-of-order report",
			"trial_id", ev.trialID, "interval", ev.interval, "last", s.lastInterval[ev.trialID])
		return
	}

	value, ok, err := s.objective.Eval(ev.metrics)
	if err != nil {
		s.logger.Warn("objective evaluation failed", "trial_id", ev.trialID, "error", err)
		return
	}
	if !ok {
		s.logger.Debug("objective not evaluable for report", "trial_id", ev.trialID, "interval", ev.interval)
		return
	}

	s.lastInterval[ev.trialID] = ev.interval
	s.history[ev.trialID] = append(s.history[ev.trialID], policy.Point{Interval: ev.interval, Value: value})

	report := &model.MetricReport{
		TrialID:    ev.trialID,
		Interval:   ev.interval,
		Value:      value,
		ReportedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMetric(ctx, report); err != nil {
		s.logger.Error("append metric", "trial_id", ev.trialID, "error", err)
	}

	if s.policy != nil && s.policy.Evaluable(ev.interval) {
		s.applyPolicy(ctx, ev.interval)
	}
}

// applyPolicy snapshots the ledger and cancels whichever running trials
// the policy flags.
func (s *Scheduler) applyPolicy(ctx context.Context, interval int) {
	snap := &policy.Snapshot{Goal: s.run.Config.Goal, Series: s.history}
	for _, id := range s.policy.Evaluate(snap, interval) {
		if _, running := s.slots[id]; !running {
			continue
		}
		trial := s.trials[id]
		s.logger.Info("trial cancelled by policy",
			"trial_id", id, "policy", s.policy.Name(), "interval", interval)
		s.finishTrial(ctx, trial, model.TrialStateCancelled, "")
		s.signalCancel(id)
	}
}

// handleFinished records the executor-reported terminal state. Trials
// the policy already cancelled are terminal and the event is dropped.
func (s *Scheduler) handleFinished(ctx context.Context, ev schedEvent) {
	trial, ok := s.trials[ev.trialID]
	if !ok || trial.State.IsTerminal() {
		return
	}

	s.finishTrial(ctx, trial, ev.state, ev.message)
	s.logger.Info("trial finished", "trial_id", trial.ID, "state", trial.State)

	if trial.State == model.TrialStateCompleted && s.observer != nil && trial.FinalValue != nil {
		s.observer.Observe(trial.Config, *trial.FinalValue)
	}
	s.fill(ctx)
}

// finishTrial moves the trial to a terminal state, records its final
// value from the ledger, persists it, and frees its concurrency slot.
func (s *Scheduler) finishTrial(ctx context.Context, trial *model.Trial, state model.TrialState, message string) {
	if !trial.State.CanTransitionTo(state) {
		s.logger.Error("invalid trial transition", "trial_id", trial.ID, "from", trial.State, "to", state)
		return
	}
	now := time.Now().UTC()
	trial.State = state
	trial.EndedAt = &now
	trial.FailureMessage = message
	if series := s.history[trial.ID]; len(series) > 0 {
		v := series[len(series)-1].Value
		trial.FinalValue = &v
	}
	if err := s.store.UpdateTrial(ctx, trial); err != nil {
		s.logger.Error("update trial", "trial_id", trial.ID, "error", err)
	}
	delete(s.slots, trial.ID)
}

// signalCancel tells the executor to kill the trial without blocking
// the control goroutine.
func (s *Scheduler) signalCancel(trialID string) {
	go func() {
		if err := s.exec.Cancel(context.Background(), trialID); err != nil {
			s.logger.Error("cancel trial", "trial_id", trialID, "error", err)
		}
	}()
}

// beginAbort cancels every live trial and stops new dispatch. The loop
// then drains normally until no slots remain.
func (s *Scheduler) beginAbort(ctx context.Context) {
	if s.aborting {
		return
	}
	s.aborting = true
	s.logger.Info("run aborting", "live_trials", len(s.slots))
	for id := range s.slots {
		s.finishTrial(ctx, s.trials[id], model.TrialStateCancelled, "")
		s.signalCancel(id)
	}
}

func (s *Scheduler) finished() bool {
	if len(s.slots) != 0 {
		return false
	}
	return s.aborting || s.exhausted || s.dispatched >= s.run.Config.MaxTotalRuns
}

// finalize persists the run's terminal state and the best trial.
func (s *Scheduler) finalize(ctx context.Context) error {
	now := time.Now().UTC()
	if s.aborting {
		s.run.State = model.RunStateAborted
	} else {
		s.run.State = model.RunStateCompleted
	}
	s.run.CompletedAt = &now

	if best := model.BestTrial(s.trialList(), s.run.Config.Goal); best != nil {
		s.run.BestTrialID = best.ID
	}

	if err := s.store.UpdateRun(ctx, s.run); err != nil {
		return fmt.Errorf("run %s: finalize: %w", s.run.ID, err)
	}
	s.logger.Info("run finished",
		"state", s.run.State,
		"trials", s.dispatched,
		"best_trial_id", s.run.BestTrialID,
	)
	return nil
}

// trialList returns trials in dispatch order.
func (s *Scheduler) trialList() []*model.Trial {
	out := make([]*model.Trial, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.trials[id])
	}
	return out
}
