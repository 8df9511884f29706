package policy

import (
	"sort"

	"github.com/me/gotune/pkg/model"
)

// MedianStoppingPolicy cancels a trial when its running average is
// strictly worse than the median of all trials' running averages at the
// evaluation interval.
type MedianStoppingPolicy struct {
	cadence
}

// NewMedianStoppingPolicy creates the policy with the given cadence.
func NewMedianStoppingPolicy(evaluationInterval, delayEvaluation int) *MedianStoppingPolicy {
	return &MedianStoppingPolicy{cadence{every: evaluationInterval, delay: delayEvaluation}}
}

// Name returns model.PolicyMedianStopping.
func (p *MedianStoppingPolicy) Name() model.PolicyName {
	return model.PolicyMedianStopping
}

// Evaluate flags trials running below the median running average.
func (p *MedianStoppingPolicy) Evaluate(snap *Snapshot, interval int) []string {
	if !p.Evaluable(interval) {
		return nil
	}

	ids := snap.trialIDs()
	averages := make(map[string]float64, len(ids))
	var values []float64
	for _, id := range ids {
		avg, ok := snap.RunningAverage(id, interval)
		if !ok {
			continue
		}
		averages[id] = avg
		values = append(values, avg)
	}
	if len(values) == 0 {
		return nil
	}

	med := median(values)

	var cancel []string
	for _, id := range ids {
		avg, ok := averages[id]
		if !ok {
			continue
		}
		if snap.Goal.Worse(avg, med) {
			cancel = append(cancel, id)
		}
	}
	return cancel
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
