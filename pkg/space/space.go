// Package space models the search space of a tuning run: the set of
// hyperparameters, their distributions, and the sampling/enumeration
// semantics each distribution supports.
package space

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Kind classifies a hyperparameter as discrete or continuous.
type Kind string

const (
	KindDiscrete   Kind = "discrete"
	KindContinuous Kind = "continuous"
)

// Distribution identifies the value distribution of a hyperparameter.
type Distribution string

const (
	DistChoice      Distribution = "choice"
	DistQUniform    Distribution = "quniform"
	DistQNormal     Distribution = "qnormal"
	DistQLogNormal  Distribution = "qlognormal"
	DistQLogUniform Distribution = "qloguniform"
	DistUniform     Distribution = "uniform"
	DistNormal      Distribution = "normal"
	DistLogNormal   Distribution = "lognormal"
	DistLogUniform  Distribution = "loguniform"
)

// Errors raised by search space construction and use.
var (
	ErrInvalidSearchSpace      = errors.New("invalid search space")
	ErrUnsupportedOperation    = errors.New("unsupported operation")
	ErrUnsupportedDistribution = errors.New("unsupported distribution")
)

// ChoiceRange declares an integer range (stop exclusive) expanded into
// explicit choice values at construction.
type ChoiceRange struct {
	Start int `json:"start" yaml:"start"`
	Stop  int `json:"stop" yaml:"stop"`
	Step  int `json:"step" yaml:"step"`
}

// ParamSpec declares one tunable hyperparameter.
//
// The numeric parameters are distribution-dependent: uniform-family
// distributions use Low/High, normal-family use Mean/Std, and the
// quantized q* forms additionally require Q > 0. choice takes either an
// explicit Values list or a Range.
type ParamSpec struct {
	Name         string       `json:"name" yaml:"name"`
	Distribution Distribution `json:"distribution" yaml:"distribution"`

	Values []any        `json:"values,omitempty" yaml:"values,omitempty"`
	Range  *ChoiceRange `json:"range,omitempty" yaml:"range,omitempty"`

	Low  float64 `json:"low,omitempty" yaml:"low,omitempty"`
	High float64 `json:"high,omitempty" yaml:"high,omitempty"`
	Mean float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std  float64 `json:"std,omitempty" yaml:"std,omitempty"`
	Q    float64 `json:"q,omitempty" yaml:"q,omitempty"`
}

// Kind returns the kind implied by the spec's distribution.
func (p *ParamSpec) Kind() Kind {
	switch p.Distribution {
	case DistChoice, DistQUniform, DistQNormal, DistQLogNormal, DistQLogUniform:
		return KindDiscrete
	default:
		return KindContinuous
	}
}

// Validate checks the spec's parameters against its distribution.
// All failures wrap ErrInvalidSearchSpace.
func (p *ParamSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: hyperparameter with empty name", ErrInvalidSearchSpace)
	}
	switch p.Distribution {
	case DistChoice:
		if len(p.Values) == 0 && p.Range == nil {
			return fmt.Errorf("%w: %s: choice requires values or range", ErrInvalidSearchSpace, p.Name)
		}
		if len(p.Values) > 0 && p.Range != nil {
			return fmt.Errorf("%w: %s: choice takes values or range, not both", ErrInvalidSearchSpace, p.Name)
		}
		if p.Range != nil {
			if p.Range.Step <= 0 {
				return fmt.Errorf("%w: %s: range step must be > 0", ErrInvalidSearchSpace, p.Name)
			}
			if p.Range.Stop <= p.Range.Start {
				return fmt.Errorf("%w: %s: range stop must be > start", ErrInvalidSearchSpace, p.Name)
			}
		}
	case DistUniform, DistLogUniform, DistQUniform, DistQLogUniform:
		if p.High <= p.Low {
			return fmt.Errorf("%w: %s: high must be > low", ErrInvalidSearchSpace, p.Name)
		}
		if (p.Distribution == DistLogUniform || p.Distribution == DistQLogUniform) && p.Low <= 0 {
			return fmt.Errorf("%w: %s: log-uniform bounds must be > 0", ErrInvalidSearchSpace, p.Name)
		}
	case DistNormal, DistLogNormal, DistQNormal, DistQLogNormal:
		if p.Std <= 0 {
			return fmt.Errorf("%w: %s: std must be > 0", ErrInvalidSearchSpace, p.Name)
		}
	default:
		return fmt.Errorf("%w: %s: unknown distribution %q", ErrInvalidSearchSpace, p.Name, p.Distribution)
	}
	if p.Kind() == KindDiscrete && p.Distribution != DistChoice && p.Q <= 0 {
		return fmt.Errorf("%w: %s: q must be > 0", ErrInvalidSearchSpace, p.Name)
	}
	if p.Distribution == DistQUniform || p.Distribution == DistQLogUniform {
		if math.Floor(p.High/p.Q+1e-9) < math.Ceil(p.Low/p.Q-1e-9) {
			return fmt.Errorf("%w: %s: no multiple of q lies in [low, high]", ErrInvalidSearchSpace, p.Name)
		}
	}
	return nil
}

// Sample draws one value from the spec's distribution. Discrete specs
// never produce a value outside their support.
func (p *ParamSpec) Sample(rng *rand.Rand) any {
	switch p.Distribution {
	case DistChoice:
		return p.Values[rng.Intn(len(p.Values))]
	case DistUniform:
		return p.Low + rng.Float64()*(p.High-p.Low)
	case DistNormal:
		return p.Mean + rng.NormFloat64()*p.Std
	case DistLogNormal:
		return math.Exp(p.Mean + rng.NormFloat64()*p.Std)
	case DistLogUniform:
		lo, hi := math.Log(p.Low), math.Log(p.High)
		return math.Exp(lo + rng.Float64()*(hi-lo))
	case DistQUniform:
		v := p.Low + rng.Float64()*(p.High-p.Low)
		return p.quantizeInBounds(v)
	case DistQNormal:
		return quantize(p.Mean+rng.NormFloat64()*p.Std, p.Q)
	case DistQLogNormal:
		return quantize(math.Exp(p.Mean+rng.NormFloat64()*p.Std), p.Q)
	case DistQLogUniform:
		lo, hi := math.Log(p.Low), math.Log(p.High)
		return p.quantizeInBounds(math.Exp(lo + rng.Float64()*(hi-lo)))
	}
	panic(fmt.Sprintf("space: sample on unvalidated distribution %q", p.Distribution))
}

// Enumerate returns the finite support of a discrete spec.
//
// Only choice and quniform have a usable finite support: quniform
// enumerates every multiple of q within [low, high]. The quantized
// normal and log forms stay sampleable but are not enumerable and
// return ErrUnsupportedOperation, as do continuous kinds.
func (p *ParamSpec) Enumerate() ([]any, error) {
	switch p.Distribution {
	case DistChoice:
		out := make([]any, len(p.Values))
		copy(out, p.Values)
		return out, nil
	case DistQUniform:
		var out []any
		start := math.Ceil(p.Low/p.Q-1e-9) * p.Q
		for v := start; v <= p.High+1e-9; v += p.Q {
			out = append(out, quantize(v, p.Q))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: enumerate on %s distribution %q", ErrUnsupportedOperation, p.Kind(), p.Distribution)
	}
}

// quantize rounds v to the nearest multiple of q.
func quantize(v, q float64) float64 {
	return math.Round(v/q) * q
}

// quantizeInBounds rounds v to the nearest multiple of q and clamps the
// result into [ceil(low/q)*q, floor(high/q)*q]. When low or high is not
// a multiple of q, plain rounding of an in-bounds draw can land outside
// that band; clamping keeps samples within the support Enumerate
// reports.
func (p *ParamSpec) quantizeInBounds(v float64) float64 {
	r := quantize(v, p.Q)
	if min := math.Ceil(p.Low/p.Q-1e-9) * p.Q; r < min {
		return min
	}
	if max := math.Floor(p.High/p.Q+1e-9) * p.Q; r > max {
		return max
	}
	return r
}

// SearchSpace is an immutable, validated set of hyperparameter specs
// keyed by name.
type SearchSpace struct {
	specs map[string]*ParamSpec
	names []string
}

// New validates the given specs and builds a SearchSpace. Duplicate
// names and invalid specs fail with ErrInvalidSearchSpace. Range-form
// choice specs are expanded into explicit values here.
func New(specs []ParamSpec) (*SearchSpace, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no hyperparameters declared", ErrInvalidSearchSpace)
	}
	ss := &SearchSpace{specs: make(map[string]*ParamSpec, len(specs))}
	for i := range specs {
		p := specs[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := ss.specs[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate hyperparameter %q", ErrInvalidSearchSpace, p.Name)
		}
		if p.Range != nil {
			for v := p.Range.Start; v < p.Range.Stop; v += p.Range.Step {
				p.Values = append(p.Values, v)
			}
			p.Range = nil
		}
		ss.specs[p.Name] = &p
		ss.names = append(ss.names, p.Name)
	}
	sort.Strings(ss.names)
	return ss, nil
}

// Names returns the hyperparameter names in lexicographic order.
func (ss *SearchSpace) Names() []string {
	out := make([]string, len(ss.names))
	copy(out, ss.names)
	return out
}

// Spec returns the spec for the given name, or nil.
func (ss *SearchSpace) Spec(name string) *ParamSpec {
	return ss.specs[name]
}

// Len returns the number of hyperparameters.
func (ss *SearchSpace) Len() int {
	return len(ss.names)
}
