package sampler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/me/gotune/pkg/model"
	"github.com/me/gotune/pkg/space"
)

func discreteSpace(t *testing.T) *space.SearchSpace {
	t.Helper()
	ss, err := space.New([]space.ParamSpec{
		{Name: "batch_size", Distribution: space.DistChoice, Values: []any{16, 32, 64}},
		{Name: "layers", Distribution: space.DistChoice, Range: &space.ChoiceRange{Start: 1, Stop: 3, Step: 1}},
		{Name: "units", Distribution: space.DistQUniform, Low: 10, High: 30, Q: 10},
	})
	if err != nil {
		t.Fatalf("space.New: %v", err)
	}
	return ss
}

func TestGridSampler_ExactProductNoDuplicates(t *testing.T) {
	g, err := NewGridSampler(discreteSpace(t))
	if err != nil {
		t.Fatalf("NewGridSampler: %v", err)
	}

	// 3 batch sizes × 2 layer counts × 3 unit values.
	const want = 18
	seen := make(map[string]bool)
	for i := 0; i < want; i++ {
		cfg, err := g.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		key := fmt.Sprintf("%v|%v|%v", cfg["batch_size"], cfg["layers"], cfg["units"])
		if seen[key] {
			t.Fatalf("duplicate configuration %s", key)
		}
		seen[key] = true
	}
	if len(seen) != want {
		t.Fatalf("got %d configurations, want %d", len(seen), want)
	}

	if _, err := g.Next(); !errors.Is(err, model.ErrExhausted) {
		t.Fatalf("err after product = %v, want ErrExhausted", err)
	}
}

func TestGridSampler_DeterministicOrder(t *testing.T) {
	ss, err := space.New([]space.ParamSpec{
		{Name: "b", Distribution: space.DistChoice, Values: []any{"x", "y"}},
		{Name: "a", Distribution: space.DistChoice, Values: []any{1, 2}},
	})
	if err != nil {
		t.Fatalf("space.New: %v", err)
	}
	g, err := NewGridSampler(ss)
	if err != nil {
		t.Fatalf("NewGridSampler: %v", err)
	}

	// Lexicographic by name: "a" is most significant, "b" cycles fastest.
	want := []model.Configuration{
		{"a": 1, "b": "x"},
		{"a": 1, "b": "y"},
		{"a": 2, "b": "x"},
		{"a": 2, "b": "y"},
	}
	for i, w := range want {
		cfg, err := g.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if cfg["a"] != w["a"] || cfg["b"] != w["b"] {
			t.Errorf("cfg[%d] = %v, want %v", i, cfg, w)
		}
	}
}

func TestGridSampler_RejectsContinuousSpec(t *testing.T) {
	ss, err := space.New([]space.ParamSpec{
		{Name: "lr", Distribution: space.DistUniform, Low: 0, High: 1},
	})
	if err != nil {
		t.Fatalf("space.New: %v", err)
	}
	if _, err := NewGridSampler(ss); !errors.Is(err, space.ErrInvalidSearchSpace) {
		t.Fatalf("err = %v, want ErrInvalidSearchSpace", err)
	}
}

func TestGridSampler_RejectsQNormal(t *testing.T) {
	ss, err := space.New([]space.ParamSpec{
		{Name: "n", Distribution: space.DistQNormal, Mean: 10, Std: 2, Q: 1},
	})
	if err != nil {
		t.Fatalf("space.New: %v", err)
	}
	if _, err := NewGridSampler(ss); !errors.Is(err, space.ErrInvalidSearchSpace) {
		t.Fatalf("err = %v, want ErrInvalidSearchSpace", err)
	}
}
