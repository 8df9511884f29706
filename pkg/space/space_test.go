package space

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNew_RejectsInvalidSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []ParamSpec
	}{
		{"empty space", nil},
		{"empty name", []ParamSpec{{Distribution: DistUniform, Low: 0, High: 1}}},
		{"duplicate name", []ParamSpec{
			{Name: "lr", Distribution: DistUniform, Low: 0, High: 1},
			{Name: "lr", Distribution: DistUniform, Low: 0, High: 1},
		}},
		{"inverted bounds", []ParamSpec{{Name: "lr", Distribution: DistUniform, Low: 1, High: 0}}},
		{"loguniform nonpositive low", []ParamSpec{{Name: "lr", Distribution: DistLogUniform, Low: 0, High: 1}}},
		{"zero std", []ParamSpec{{Name: "m", Distribution: DistNormal, Mean: 0, Std: 0}}},
		{"quniform without q", []ParamSpec{{Name: "n", Distribution: DistQUniform, Low: 0, High: 10}}},
		{"quniform empty quantized support", []ParamSpec{{Name: "n", Distribution: DistQUniform, Low: 1, High: 3, Q: 4}}},
		{"empty choice", []ParamSpec{{Name: "c", Distribution: DistChoice}}},
		{"choice values and range", []ParamSpec{{
			Name: "c", Distribution: DistChoice,
			Values: []any{1, 2}, Range: &ChoiceRange{Start: 0, Stop: 4, Step: 1},
		}}},
		{"unknown distribution", []ParamSpec{{Name: "x", Distribution: "triangular", Low: 0, High: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.specs); !errors.Is(err, ErrInvalidSearchSpace) {
				t.Fatalf("err = %v, want ErrInvalidSearchSpace", err)
			}
		})
	}
}

func TestNew_ExpandsChoiceRange(t *testing.T) {
	ss, err := New([]ParamSpec{{
		Name:         "layers",
		Distribution: DistChoice,
		Range:        &ChoiceRange{Start: 1, Stop: 9, Step: 2},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vals, err := ss.Spec("layers").Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	want := []int{1, 3, 5, 7}
	if len(vals) != len(want) {
		t.Fatalf("got %d values, want %d", len(vals), len(want))
	}
	for i, w := range want {
		if vals[i] != w {
			t.Errorf("vals[%d] = %v, want %d", i, vals[i], w)
		}
	}
}

func TestSample_ChoiceStaysInSupport(t *testing.T) {
	spec := ParamSpec{Name: "bs", Distribution: DistChoice, Values: []any{16, 32, 64}}
	rng := rand.New(rand.NewSource(1))

	support := map[any]bool{16: true, 32: true, 64: true}
	for i := 0; i < 200; i++ {
		v := spec.Sample(rng)
		if !support[v] {
			t.Fatalf("sample %v outside support", v)
		}
	}
}

func TestSample_UniformWithinBounds(t *testing.T) {
	spec := ParamSpec{Name: "lr", Distribution: DistUniform, Low: 0.25, High: 0.75}
	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 200; i++ {
		v := spec.Sample(rng).(float64)
		if v < 0.25 || v >= 0.75 {
			t.Fatalf("sample %v outside [0.25, 0.75)", v)
		}
	}
}

func TestSample_QUniformQuantized(t *testing.T) {
	spec := ParamSpec{Name: "units", Distribution: DistQUniform, Low: 0, High: 100, Q: 10}
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 200; i++ {
		v := spec.Sample(rng).(float64)
		if rem := math.Mod(v, 10); math.Abs(rem) > 1e-9 && math.Abs(rem-10) > 1e-9 {
			t.Fatalf("sample %v is not a multiple of q=10", v)
		}
		if v < -1e-9 || v > 100+1e-9 {
			t.Fatalf("sample %v outside quantized bounds", v)
		}
	}
}

func TestSample_QUniformStaysInEnumeratedSupport(t *testing.T) {
	// Bounds that are not multiples of q: rounding alone would produce 0
	// for draws near low and 12 for draws near high.
	spec := ParamSpec{Name: "units", Distribution: DistQUniform, Low: 1, High: 10, Q: 4}

	vals, err := spec.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	support := make(map[float64]bool, len(vals))
	for _, v := range vals {
		support[v.(float64)] = true
	}

	rng := rand.New(rand.NewSource(6))
	for i := 0; i < 1000; i++ {
		v := spec.Sample(rng).(float64)
		if !support[v] {
			t.Fatalf("sample %v not in enumerated support %v", v, vals)
		}
	}
}

func TestSample_QLogUniformWithinQuantizedBounds(t *testing.T) {
	spec := ParamSpec{Name: "units", Distribution: DistQLogUniform, Low: 3, High: 21, Q: 4}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		v := spec.Sample(rng).(float64)
		if rem := math.Mod(v, 4); math.Abs(rem) > 1e-9 && math.Abs(rem-4) > 1e-9 {
			t.Fatalf("sample %v is not a multiple of q=4", v)
		}
		if v < 4-1e-9 || v > 20+1e-9 {
			t.Fatalf("sample %v outside quantized bounds [4, 20]", v)
		}
	}
}

func TestSample_LogUniformPositiveWithinBounds(t *testing.T) {
	spec := ParamSpec{Name: "lr", Distribution: DistLogUniform, Low: 1e-5, High: 1e-1}
	rng := rand.New(rand.NewSource(4))

	for i := 0; i < 200; i++ {
		v := spec.Sample(rng).(float64)
		if v < 1e-5 || v > 1e-1 {
			t.Fatalf("sample %v outside [1e-5, 1e-1]", v)
		}
	}
}

func TestSample_LogNormalPositive(t *testing.T) {
	spec := ParamSpec{Name: "x", Distribution: DistLogNormal, Mean: 0, Std: 1}
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < 100; i++ {
		if v := spec.Sample(rng).(float64); v <= 0 {
			t.Fatalf("lognormal sample %v is not positive", v)
		}
	}
}

func TestEnumerate_QUniform(t *testing.T) {
	spec := ParamSpec{Name: "units", Distribution: DistQUniform, Low: 10, High: 50, Q: 10}
	vals, err := spec.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(vals) != 5 {
		t.Fatalf("got %d values, want 5 (10..50 step 10)", len(vals))
	}
	if vals[0].(float64) != 10 || vals[4].(float64) != 50 {
		t.Errorf("endpoints = %v, %v; want 10, 50", vals[0], vals[4])
	}
}

func TestEnumerate_UnsupportedKinds(t *testing.T) {
	specs := []ParamSpec{
		{Name: "a", Distribution: DistUniform, Low: 0, High: 1},
		{Name: "b", Distribution: DistNormal, Mean: 0, Std: 1},
		{Name: "c", Distribution: DistQNormal, Mean: 0, Std: 1, Q: 1},
		{Name: "d", Distribution: DistQLogUniform, Low: 1, High: 10, Q: 1},
	}
	for _, spec := range specs {
		if _, err := spec.Enumerate(); !errors.Is(err, ErrUnsupportedOperation) {
			t.Errorf("%s: err = %v, want ErrUnsupportedOperation", spec.Distribution, err)
		}
	}
}

func TestSearchSpace_NamesSorted(t *testing.T) {
	ss, err := New([]ParamSpec{
		{Name: "zeta", Distribution: DistUniform, Low: 0, High: 1},
		{Name: "alpha", Distribution: DistUniform, Low: 0, High: 1},
		{Name: "mid", Distribution: DistUniform, Low: 0, High: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	names := ss.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}
