package model

import (
	"fmt"
	"time"

	"github.com/me/gotune/pkg/space"
)

// Configuration is an instantiated point in the search space: a mapping
// from hyperparameter name to a concrete value. It is produced by a
// sampler and passed opaquely to the trial executor.
type Configuration map[string]any

// SamplingConfig selects and parameterizes the sampling strategy.
type SamplingConfig struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Seed makes random draws reproducible. Zero means time-seeded.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// CandidatePool is the number of candidates the Bayesian sampler
	// scores per proposal. Zero means the sampler default.
	CandidatePool int `json:"candidate_pool,omitempty" yaml:"candidate_pool,omitempty"`
}

// PolicyConfig selects and parameterizes the early-termination policy.
type PolicyConfig struct {
	Name PolicyName `json:"name" yaml:"name"`

	// Exactly one of SlackAmount/SlackFactor must be set for bandit.
	SlackAmount *float64 `json:"slack_amount,omitempty" yaml:"slack_amount,omitempty"`
	SlackFactor *float64 `json:"slack_factor,omitempty" yaml:"slack_factor,omitempty"`

	// TruncationPercentage is the share of trials cancelled per
	// evaluation by truncation_selection (1..99).
	TruncationPercentage int `json:"truncation_percentage,omitempty" yaml:"truncation_percentage,omitempty"`

	EvaluationInterval int `json:"evaluation_interval" yaml:"evaluation_interval"`
	DelayEvaluation    int `json:"delay_evaluation" yaml:"delay_evaluation"`
}

// RunConfig is the declarative configuration of one tuning run.
// Immutable once the run starts.
type RunConfig struct {
	Name string `json:"name" yaml:"name"`

	// Metric is the primary metric name used to rank trials.
	Metric string `json:"metric" yaml:"metric"`
	Goal   Goal   `json:"goal" yaml:"goal"`

	MaxTotalRuns      int `json:"max_total_runs" yaml:"max_total_runs"`
	MaxConcurrentRuns int `json:"max_concurrent_runs" yaml:"max_concurrent_runs"`

	Sampling SamplingConfig `json:"sampling" yaml:"sampling"`
	Policy   *PolicyConfig  `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Objective is an optional expression folding a trial's named
	// metric series into the primary metric, e.g.
	// "metrics.accuracy - 0.05 * metrics.latency".
	Objective string `json:"objective,omitempty" yaml:"objective,omitempty"`

	// Command is the trial command template for the local executor.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	Executor ExecutorType `json:"executor,omitempty" yaml:"executor,omitempty"`

	Space []space.ParamSpec `json:"space" yaml:"space"`
}

// Validate checks the run configuration. Bayesian sampling paired with
// an early-termination policy fails with ErrConflictingConfiguration;
// all other problems are reported as validation APIErrors.
func (c *RunConfig) Validate() error {
	var details []FieldError
	if c.Metric == "" {
		details = append(details, FieldError{Field: "metric", Message: "primary metric name is required"})
	}
	if !c.Goal.Valid() {
		details = append(details, FieldError{Field: "goal", Message: fmt.Sprintf("goal must be %q or %q", GoalMaximize, GoalMinimize)})
	}
	if c.MaxTotalRuns < 1 {
		details = append(details, FieldError{Field: "max_total_runs", Message: "must be >= 1"})
	}
	if c.MaxConcurrentRuns < 1 {
		details = append(details, FieldError{Field: "max_concurrent_runs", Message: "must be >= 1"})
	}
	if !c.Sampling.Strategy.Valid() {
		details = append(details, FieldError{Field: "sampling.strategy", Message: fmt.Sprintf("unknown strategy %q", c.Sampling.Strategy)})
	}
	if len(c.Space) == 0 {
		details = append(details, FieldError{Field: "space", Message: "at least one hyperparameter is required"})
	}

	if c.Policy != nil {
		if c.Sampling.Strategy == StrategyBayesian {
			return fmt.Errorf("%w: bayesian sampling cannot be combined with an early-termination policy", ErrConflictingConfiguration)
		}
		details = append(details, c.Policy.validate()...)
	}

	if len(details) > 0 {
		return NewValidationError("invalid tuning run configuration", details...)
	}
	return nil
}

func (p *PolicyConfig) validate() []FieldError {
	var details []FieldError
	if !p.Name.Valid() {
		details = append(details, FieldError{Field: "policy.name", Message: fmt.Sprintf("unknown policy %q", p.Name)})
		return details
	}
	if p.EvaluationInterval < 1 {
		details = append(details, FieldError{Field: "policy.evaluation_interval", Message: "must be >= 1"})
	}
	if p.DelayEvaluation < 0 {
		details = append(details, FieldError{Field: "policy.delay_evaluation", Message: "must be >= 0"})
	}
	switch p.Name {
	case PolicyBandit:
		if (p.SlackAmount == nil) == (p.SlackFactor == nil) {
			details = append(details, FieldError{Field: "policy", Message: "bandit requires exactly one of slack_amount or slack_factor"})
		}
		if p.SlackAmount != nil && *p.SlackAmount < 0 {
			details = append(details, FieldError{Field: "policy.slack_amount", Message: "must be >= 0"})
		}
		if p.SlackFactor != nil && *p.SlackFactor < 0 {
			details = append(details, FieldError{Field: "policy.slack_factor", Message: "must be >= 0"})
		}
	case PolicyTruncationSelection:
		if p.TruncationPercentage < 1 || p.TruncationPercentage > 99 {
			details = append(details, FieldError{Field: "policy.truncation_percentage", Message: "must be between 1 and 99"})
		}
	}
	return details
}

// TuningRun is one tuning experiment: a validated configuration plus
// lifecycle state and the identifier of the best trial once known.
type TuningRun struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	State       RunState   `json:"state"`
	Config      RunConfig  `json:"config"`
	BestTrialID string     `json:"best_trial_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
