package sampler

import (
	"fmt"

	"github.com/me/gotune/pkg/model"
	"github.com/me/gotune/pkg/space"
)

// GridSampler emits the full Cartesian product of every spec's
// enumeration, ordered lexicographically by hyperparameter name and
// within a name by enumeration order. It requires every spec in the
// space to be enumerable.
type GridSampler struct {
	names   []string
	values  [][]any
	indexes []int
	done    bool
}

// NewGridSampler enumerates every spec up front. A spec that cannot be
// enumerated (continuous, or a quantized form without finite support)
// fails construction with space.ErrInvalidSearchSpace.
func NewGridSampler(ss *space.SearchSpace) (*GridSampler, error) {
	g := &GridSampler{names: ss.Names()}
	for _, name := range g.names {
		vals, err := ss.Spec(name).Enumerate()
		if err != nil {
			return nil, fmt.Errorf("%w: grid sampling requires enumerable specs: %s: %v",
				space.ErrInvalidSearchSpace, name, err)
		}
		g.values = append(g.values, vals)
	}
	g.indexes = make([]int, len(g.names))
	return g, nil
}

// Name returns model.StrategyGrid.
func (g *GridSampler) Name() model.Strategy {
	return model.StrategyGrid
}

// Next returns the next point of the Cartesian product, or
// model.ErrExhausted once the product is spent. The first name is the
// most significant position, so the last name's enumeration cycles
// fastest.
func (g *GridSampler) Next() (model.Configuration, error) {
	if g.done {
		return nil, model.ErrExhausted
	}

	cfg := make(model.Configuration, len(g.names))
	for i, name := range g.names {
		cfg[name] = g.values[i][g.indexes[i]]
	}

	// Odometer increment from the least significant position.
	for i := len(g.indexes) - 1; ; i-- {
		g.indexes[i]++
		if g.indexes[i] < len(g.values[i]) {
			break
		}
		g.indexes[i] = 0
		if i == 0 {
			g.done = true
			break
		}
	}

	return cfg, nil
}
