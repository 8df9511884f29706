// Package policy implements early-termination policies: pure functions
// over a metric-history snapshot that decide which running trials to
// abandon at an evaluation point.
package policy

import (
	"fmt"
	"sort"

	"github.com/me/gotune/pkg/model"
)

// Point is one (interval, value) primary-metric report.
type Point struct {
	Interval int
	Value    float64
}

// Snapshot is a read-only view of the metric ledger at an evaluation
// point: per-trial ordered report series plus the optimization goal.
// Policies never mutate it.
type Snapshot struct {
	Goal   model.Goal
	Series map[string][]Point
}

// ValueAt returns the trial's most recent report at or before the given
// interval. Trials report out of lockstep, so an evaluation uses
// whatever reports exist; a trial with none yet is simply not evaluable
// and the second return is false.
func (s *Snapshot) ValueAt(trialID string, interval int) (float64, bool) {
	series := s.Series[trialID]
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Interval <= interval {
			return series[i].Value, true
		}
	}
	return 0, false
}

// RunningAverage returns the mean of the trial's reports up to and
// including the given interval, or false if none exist.
func (s *Snapshot) RunningAverage(trialID string, interval int) (float64, bool) {
	var sum float64
	var n int
	for _, p := range s.Series[trialID] {
		if p.Interval > interval {
			break
		}
		sum += p.Value
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// trialIDs returns the snapshot's trial identifiers in sorted order so
// policy decisions are deterministic.
func (s *Snapshot) trialIDs() []string {
	ids := make([]string, 0, len(s.Series))
	for id := range s.Series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Policy decides which trials to cancel at an evaluation point.
// Evaluate is pure: it never mutates the snapshot and never errors on
// missing data. The returned IDs may include trials that already
// reached a terminal state; the scheduler cancels only running ones.
type Policy interface {
	// Name returns the policy identifier.
	Name() model.PolicyName

	// Evaluable reports whether the policy's cadence selects this
	// interval: a multiple of evaluation_interval at or past
	// delay_evaluation.
	Evaluable(interval int) bool

	// Evaluate returns the trials to cancel at the interval, or nil
	// when the interval is outside the evaluation cadence.
	Evaluate(snap *Snapshot, interval int) []string
}

// cadence gates evaluation points. Intervals below delay never cancel
// anything.
type cadence struct {
	every int
	delay int
}

func (c cadence) Evaluable(interval int) bool {
	return interval >= c.delay && c.every > 0 && interval%c.every == 0
}

// New constructs the policy named by the config. The config is assumed
// validated (model.RunConfig.Validate).
func New(cfg *model.PolicyConfig) (Policy, error) {
	switch cfg.Name {
	case model.PolicyBandit:
		return NewBanditPolicy(cfg.SlackAmount, cfg.SlackFactor, cfg.EvaluationInterval, cfg.DelayEvaluation)
	case model.PolicyMedianStopping:
		return NewMedianStoppingPolicy(cfg.EvaluationInterval, cfg.DelayEvaluation), nil
	case model.PolicyTruncationSelection:
		return NewTruncationSelectionPolicy(cfg.TruncationPercentage, cfg.EvaluationInterval, cfg.DelayEvaluation)
	default:
		return nil, fmt.Errorf("unknown early-termination policy %q", cfg.Name)
	}
}
