// Package sampler produces hyperparameter configurations to evaluate,
// under one of three strategies: grid, random, or Bayesian-guided.
package sampler

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/me/gotune/pkg/model"
	"github.com/me/gotune/pkg/space"
)

// Sampler produces successive configurations. Next returns
// model.ErrExhausted when no configurations remain; that is a normal
// stop condition, not a failure.
type Sampler interface {
	// Name returns the strategy identifier.
	Name() model.Strategy

	// Next produces the next configuration to evaluate.
	Next() (model.Configuration, error)
}

// Observer is implemented by samplers that learn from trial outcomes.
// The scheduler feeds each completed trial's final primary-metric value
// back before later pulls reflect it.
type Observer interface {
	Observe(cfg model.Configuration, value float64)
}

// New constructs the sampler for the given strategy, the way the
// executor registry resolves backends by type name.
func New(cfg model.SamplingConfig, ss *space.SearchSpace, goal model.Goal) (Sampler, error) {
	rng := rand.New(rand.NewSource(seedOrNow(cfg.Seed)))

	switch cfg.Strategy {
	case model.StrategyGrid:
		return NewGridSampler(ss)
	case model.StrategyRandom:
		return NewRandomSampler(ss, rng), nil
	case model.StrategyBayesian:
		return NewBayesianSampler(ss, goal, rng, cfg.CandidatePool)
	default:
		return nil, fmt.Errorf("unknown sampling strategy %q", cfg.Strategy)
	}
}

func seedOrNow(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}
