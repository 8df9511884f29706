package sampler

import (
	"math/rand"

	"github.com/me/gotune/pkg/model"
	"github.com/me/gotune/pkg/space"
)

// RandomSampler draws every spec independently on each pull. It never
// exhausts; the run's max_total_runs is the only stop bound.
type RandomSampler struct {
	space *space.SearchSpace
	names []string
	rng   *rand.Rand
}

// NewRandomSampler creates a seeded random sampler over the space.
func NewRandomSampler(ss *space.SearchSpace, rng *rand.Rand) *RandomSampler {
	return &RandomSampler{space: ss, names: ss.Names(), rng: rng}
}

// Name returns model.StrategyRandom.
func (r *RandomSampler) Name() model.Strategy {
	return model.StrategyRandom
}

// Next samples one configuration.
func (r *RandomSampler) Next() (model.Configuration, error) {
	cfg := make(model.Configuration, len(r.names))
	for _, name := range r.names {
		cfg[name] = r.space.Spec(name).Sample(r.rng)
	}
	return cfg, nil
}
