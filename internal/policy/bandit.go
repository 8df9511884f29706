package policy

import (
	"fmt"

	"github.com/me/gotune/pkg/model"
)

// BanditPolicy cancels trials whose value falls outside a slack band
// around the best value reported at the evaluation interval.
//
// Slack is either absolute (slack_amount) or a ratio (slack_factor);
// exactly one must be set. Under maximize, a trial is cancelled when
// its value is below best − slack_amount, or below best / (1 +
// slack_factor). Under minimize the band flips: above best +
// slack_amount, or above best × (1 + slack_factor).
type BanditPolicy struct {
	cadence
	slackAmount *float64
	slackFactor *float64
}

// NewBanditPolicy validates the slack configuration.
func NewBanditPolicy(slackAmount, slackFactor *float64, evaluationInterval, delayEvaluation int) (*BanditPolicy, error) {
	if (slackAmount == nil) == (slackFactor == nil) {
		return nil, fmt.Errorf("bandit policy requires exactly one of slack_amount or slack_factor")
	}
	return &BanditPolicy{
		cadence:     cadence{every: evaluationInterval, delay: delayEvaluation},
		slackAmount: slackAmount,
		slackFactor: slackFactor,
	}, nil
}

// Name returns model.PolicyBandit.
func (p *BanditPolicy) Name() model.PolicyName {
	return model.PolicyBandit
}

// Evaluate flags every trial outside the slack band around the best
// value at the interval.
func (p *BanditPolicy) Evaluate(snap *Snapshot, interval int) []string {
	if !p.Evaluable(interval) {
		return nil
	}

	best, found := 0.0, false
	for _, id := range snap.trialIDs() {
		v, ok := snap.ValueAt(id, interval)
		if !ok {
			continue
		}
		if !found || snap.Goal.Better(v, best) {
			best, found = v, true
		}
	}
	if !found {
		return nil
	}

	threshold := p.threshold(best, snap.Goal)

	var cancel []string
	for _, id := range snap.trialIDs() {
		v, ok := snap.ValueAt(id, interval)
		if !ok {
			continue
		}
		if snap.Goal.Worse(v, threshold) {
			cancel = append(cancel, id)
		}
	}
	return cancel
}

func (p *BanditPolicy) threshold(best float64, goal model.Goal) float64 {
	if goal == model.GoalMinimize {
		if p.slackAmount != nil {
			return best + *p.slackAmount
		}
		return best * (1 + *p.slackFactor)
	}
	if p.slackAmount != nil {
		return best - *p.slackAmount
	}
	return best / (1 + *p.slackFactor)
}
