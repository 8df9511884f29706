package sampler

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/me/gotune/pkg/model"
	"github.com/me/gotune/pkg/space"
)

const (
	defaultCandidatePool = 64

	// seedObservations is the number of random draws before the
	// surrogate starts steering proposals.
	seedObservations = 5

	gpLengthScale = 0.5
	gpNoise       = 1e-4
	eiXi          = 0.01
)

// BayesianSampler proposes configurations by expected improvement under
// a Gaussian-process surrogate fitted to observed trial outcomes.
//
// Parameter vectors are normalized for the kernel: choice values are
// one-hot encoded by index, numeric values scaled to [0,1]. Minimize
// goals negate observed values internally so acquisition always
// maximizes. Observations may arrive asynchronously while proposals for
// concurrent trials are outstanding; each proposal simply uses whatever
// observations exist at the time.
type BayesianSampler struct {
	space *space.SearchSpace
	names []string
	goal  model.Goal
	rng   *rand.Rand
	pool  int

	mu sync.Mutex
	xs [][]float64
	ys []float64
}

// NewBayesianSampler validates that every spec uses a supported
// distribution (choice, uniform, quniform); anything else fails with
// space.ErrUnsupportedDistribution.
func NewBayesianSampler(ss *space.SearchSpace, goal model.Goal, rng *rand.Rand, pool int) (*BayesianSampler, error) {
	for _, name := range ss.Names() {
		switch ss.Spec(name).Distribution {
		case space.DistChoice, space.DistUniform, space.DistQUniform:
		default:
			return nil, fmt.Errorf("%w: bayesian sampling does not support %q (%s)",
				space.ErrUnsupportedDistribution, ss.Spec(name).Distribution, name)
		}
	}
	if pool <= 0 {
		pool = defaultCandidatePool
	}
	return &BayesianSampler{
		space: ss,
		names: ss.Names(),
		goal:  goal,
		rng:   rng,
		pool:  pool,
	}, nil
}

// Name returns model.StrategyBayesian.
func (b *BayesianSampler) Name() model.Strategy {
	return model.StrategyBayesian
}

// Observe ingests one completed trial's outcome. Later pulls reflect it.
func (b *BayesianSampler) Observe(cfg model.Configuration, value float64) {
	x := b.encode(cfg)
	if b.goal == model.GoalMinimize {
		value = -value
	}
	b.mu.Lock()
	b.xs = append(b.xs, x)
	b.ys = append(b.ys, value)
	b.mu.Unlock()
}

// Next proposes the candidate maximizing expected improvement under the
// current surrogate. Before enough observations exist it samples
// randomly (seed phase), and it falls back to a random draw when the
// surrogate cannot be fitted.
func (b *BayesianSampler) Next() (model.Configuration, error) {
	b.mu.Lock()
	n := len(b.ys)
	xs := make([][]float64, n)
	copy(xs, b.xs)
	ys := make([]float64, n)
	copy(ys, b.ys)
	b.mu.Unlock()

	if n < seedObservations {
		return b.randomDraw(), nil
	}

	surrogate, err := fitGP(xs, ys, gpLengthScale, gpNoise)
	if err != nil {
		return b.randomDraw(), nil
	}

	best := ys[0]
	for _, y := range ys[1:] {
		if y > best {
			best = y
		}
	}

	var bestCfg model.Configuration
	bestScore := -1.0
	for i := 0; i < b.pool; i++ {
		cfg := b.randomDraw()
		mean, variance := surrogate.predict(b.encode(cfg))
		if score := expectedImprovement(mean, variance, best, eiXi); score > bestScore {
			bestScore = score
			bestCfg = cfg
		}
	}
	return bestCfg, nil
}

func (b *BayesianSampler) randomDraw() model.Configuration {
	cfg := make(model.Configuration, len(b.names))
	for _, name := range b.names {
		cfg[name] = b.space.Spec(name).Sample(b.rng)
	}
	return cfg
}

// encode builds the normalized parameter vector for a configuration.
func (b *BayesianSampler) encode(cfg model.Configuration) []float64 {
	var x []float64
	for _, name := range b.names {
		spec := b.space.Spec(name)
		v := cfg[name]
		switch spec.Distribution {
		case space.DistChoice:
			hot := make([]float64, len(spec.Values))
			for i, candidate := range spec.Values {
				if valueEqual(candidate, v) {
					hot[i] = 1
					break
				}
			}
			x = append(x, hot...)
		default:
			x = append(x, (toFloat(v)-spec.Low)/(spec.High-spec.Low))
		}
	}
	return x
}

func valueEqual(a, b any) bool {
	if a == b {
		return true
	}
	// Choice values survive a JSON round trip as float64.
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) float64 {
	f, _ := asFloat(v)
	return f
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
