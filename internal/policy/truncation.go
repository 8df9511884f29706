package policy

import (
	"fmt"
	"sort"

	"github.com/me/gotune/pkg/model"
)

// TruncationSelectionPolicy ranks all trials by their value at the
// evaluation interval and cancels the worst truncation_percentage%
// (rounded down, minimum zero).
type TruncationSelectionPolicy struct {
	cadence
	percentage int
}

// NewTruncationSelectionPolicy validates the percentage (1..99).
func NewTruncationSelectionPolicy(percentage, evaluationInterval, delayEvaluation int) (*TruncationSelectionPolicy, error) {
	if percentage < 1 || percentage > 99 {
		return nil, fmt.Errorf("truncation_percentage must be between 1 and 99, got %d", percentage)
	}
	return &TruncationSelectionPolicy{
		cadence:    cadence{every: evaluationInterval, delay: delayEvaluation},
		percentage: percentage,
	}, nil
}

// Name returns model.PolicyTruncationSelection.
func (p *TruncationSelectionPolicy) Name() model.PolicyName {
	return model.PolicyTruncationSelection
}

// Evaluate flags the worst floor(n × pct / 100) trials at the interval.
func (p *TruncationSelectionPolicy) Evaluate(snap *Snapshot, interval int) []string {
	if !p.Evaluable(interval) {
		return nil
	}

	type ranked struct {
		id    string
		value float64
	}
	var trials []ranked
	for _, id := range snap.trialIDs() {
		if v, ok := snap.ValueAt(id, interval); ok {
			trials = append(trials, ranked{id, v})
		}
	}
	if len(trials) == 0 {
		return nil
	}

	// Worst first; ties keep the sorted-ID order for determinism.
	sort.SliceStable(trials, func(i, j int) bool {
		return snap.Goal.Worse(trials[i].value, trials[j].value)
	})

	k := len(trials) * p.percentage / 100
	cancel := make([]string, 0, k)
	for i := 0; i < k; i++ {
		cancel = append(cancel, trials[i].id)
	}
	return cancel
}
