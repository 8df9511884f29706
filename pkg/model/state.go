package model

// RunState represents the lifecycle state of a TuningRun.
type RunState string

const (
	RunStatePending   RunState = "PENDING"
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateAborted   RunState = "ABORTED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateAborted:
		return true
	}
	return false
}

// ValidRunTransitions defines the allowed state transitions for TuningRuns.
var ValidRunTransitions = map[RunState][]RunState{
	RunStatePending: {RunStateRunning, RunStateAborted},
	RunStateRunning: {RunStateCompleted, RunStateAborted},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range ValidRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TrialState represents the lifecycle state of a Trial.
type TrialState string

const (
	TrialStatePending   TrialState = "PENDING"
	TrialStateRunning   TrialState = "RUNNING"
	TrialStateCompleted TrialState = "COMPLETED"
	TrialStateCancelled TrialState = "CANCELLED"
	TrialStateFailed    TrialState = "FAILED"
)

// String returns the string representation of the trial state.
func (s TrialState) String() string {
	return string(s)
}

// IsTerminal returns true if the trial is in a final state.
func (s TrialState) IsTerminal() bool {
	switch s {
	case TrialStateCompleted, TrialStateCancelled, TrialStateFailed:
		return true
	}
	return false
}

// ValidTrialTransitions defines the allowed state transitions for Trials.
var ValidTrialTransitions = map[TrialState][]TrialState{
	TrialStatePending: {TrialStateRunning, TrialStateFailed, TrialStateCancelled},
	TrialStateRunning: {TrialStateCompleted, TrialStateCancelled, TrialStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TrialState) CanTransitionTo(next TrialState) bool {
	for _, allowed := range ValidTrialTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Goal is the optimization direction for the primary metric.
type Goal string

const (
	GoalMaximize Goal = "maximize"
	GoalMinimize Goal = "minimize"
)

// Valid reports whether the goal is a known direction.
func (g Goal) Valid() bool {
	return g == GoalMaximize || g == GoalMinimize
}

// Better reports whether a is strictly better than b under the goal.
func (g Goal) Better(a, b float64) bool {
	if g == GoalMinimize {
		return a < b
	}
	return a > b
}

// Worse reports whether a is strictly worse than b under the goal.
func (g Goal) Worse(a, b float64) bool {
	return g.Better(b, a)
}

// Strategy identifies a sampling strategy.
type Strategy string

const (
	StrategyGrid     Strategy = "grid"
	StrategyRandom   Strategy = "random"
	StrategyBayesian Strategy = "bayesian"
)

// Valid reports whether the strategy is a known variant.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyGrid, StrategyRandom, StrategyBayesian:
		return true
	}
	return false
}

// PolicyName identifies an early-termination policy variant.
type PolicyName string

const (
	PolicyBandit              PolicyName = "bandit"
	PolicyMedianStopping      PolicyName = "median_stopping"
	PolicyTruncationSelection PolicyName = "truncation_selection"
)

// Valid reports whether the policy name is a known variant.
func (p PolicyName) Valid() bool {
	switch p {
	case PolicyBandit, PolicyMedianStopping, PolicyTruncationSelection:
		return true
	}
	return false
}

// ExecutorType identifies which executor backend runs trials.
type ExecutorType string

const (
	ExecutorTypeLocal ExecutorType = "local"
)
