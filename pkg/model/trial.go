package model

import (
	"sort"
	"time"
)

// Trial represents one child run of the training procedure under a
// fixed Configuration. Owned exclusively by the scheduler for its
// lifetime; read-only everywhere else.
type Trial struct {
	ID     string        `json:"id"`
	RunID  string        `json:"run_id"`
	Seq    int           `json:"seq"`
	Config Configuration `json:"config"`
	State  TrialState    `json:"state"`

	// FinalValue is the trial's last primary-metric value. Nil for
	// trials that never reported.
	FinalValue *float64 `json:"final_value,omitempty"`

	FailureMessage string     `json:"failure_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// MetricReport is one primary-metric observation from a trial.
type MetricReport struct {
	TrialID    string    `json:"trial_id"`
	Interval   int       `json:"interval"`
	Value      float64   `json:"value"`
	ReportedAt time.Time `json:"reported_at"`
}

// RankTrials returns the completed trials with a final value, ordered
// best to worst under the goal. Ties resolve to the earliest-completed
// trial. Failed and cancelled trials are excluded.
func RankTrials(trials []*Trial, goal Goal) []*Trial {
	var ranked []*Trial
	for _, t := range trials {
		if t.State == TrialStateCompleted && t.FinalValue != nil {
			ranked = append(ranked, t)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if *a.FinalValue != *b.FinalValue {
			return goal.Better(*a.FinalValue, *b.FinalValue)
		}
		return endedBefore(a, b)
	})
	return ranked
}

// BestTrial returns the best completed trial under the goal, or nil if
// no trial completed with a final value.
func BestTrial(trials []*Trial, goal Goal) *Trial {
	ranked := RankTrials(trials, goal)
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}

func endedBefore(a, b *Trial) bool {
	switch {
	case a.EndedAt == nil:
		return false
	case b.EndedAt == nil:
		return true
	default:
		return a.EndedAt.Before(*b.EndedAt)
	}
}
