package policy

import (
	"testing"

	"github.com/me/gotune/pkg/model"
)

func TestMedianStoppingPolicy_Maximize(t *testing.T) {
	p := NewMedianStoppingPolicy(1, 0)

	// Running averages: 0.5, 0.55, 0.7, 0.75, 0.9; median 0.7.
	snap := &Snapshot{
		Goal: model.GoalMaximize,
		Series: map[string][]Point{
			"trial_a": flat(0.5, 3),
			"trial_b": flat(0.55, 3),
			"trial_c": flat(0.7, 3),
			"trial_d": flat(0.75, 3),
			"trial_e": flat(0.9, 3),
		},
	}

	cancel := p.Evaluate(snap, 3)
	if !contains(cancel, "trial_a") || !contains(cancel, "trial_b") {
		t.Errorf("averages below median 0.7 should be cancelled, got %v", cancel)
	}
	if contains(cancel, "trial_c") {
		t.Errorf("trial at the median must survive (strictly worse only), got %v", cancel)
	}
	if contains(cancel, "trial_d") || contains(cancel, "trial_e") {
		t.Errorf("averages above median should survive, got %v", cancel)
	}
}

func TestMedianStoppingPolicy_Minimize(t *testing.T) {
	p := NewMedianStoppingPolicy(1, 0)

	snap := &Snapshot{
		Goal: model.GoalMinimize,
		Series: map[string][]Point{
			"trial_a": flat(0.2, 2),
			"trial_b": flat(0.4, 2),
			"trial_c": flat(0.8, 2),
		},
	}

	cancel := p.Evaluate(snap, 2)
	if !contains(cancel, "trial_c") {
		t.Errorf("loss 0.8 above median 0.4 should be cancelled, got %v", cancel)
	}
	if contains(cancel, "trial_a") || contains(cancel, "trial_b") {
		t.Errorf("losses at or below the median should survive, got %v", cancel)
	}
}

func TestMedianStoppingPolicy_RunningAverage(t *testing.T) {
	p := NewMedianStoppingPolicy(1, 0)

	// trial_late starts badly but its running average at interval 3 is
	// (0.1+0.9+0.9)/3 ≈ 0.633 vs trial_flat's 0.5; the median of the
	// pair is their mean, so only trial_flat falls strictly below it.
	snap := &Snapshot{
		Goal: model.GoalMaximize,
		Series: map[string][]Point{
			"trial_late": {{1, 0.1}, {2, 0.9}, {3, 0.9}},
			"trial_flat": flat(0.5, 3),
		},
	}

	cancel := p.Evaluate(snap, 3)
	if contains(cancel, "trial_late") {
		t.Errorf("improving trial should survive on running average, got %v", cancel)
	}
	if !contains(cancel, "trial_flat") {
		t.Errorf("trial_flat below the median average should be cancelled, got %v", cancel)
	}
}

func TestMedianStoppingPolicy_EvenCount(t *testing.T) {
	got := median([]float64{0.4, 0.8, 0.2, 0.6})
	if got != 0.5 {
		t.Fatalf("median of even count = %v, want 0.5", got)
	}
}

func TestMedianStoppingPolicy_SingleTrialSurvives(t *testing.T) {
	p := NewMedianStoppingPolicy(1, 0)

	snap := &Snapshot{
		Goal: model.GoalMaximize,
		Series: map[string][]Point{
			"trial_only": flat(0.1, 2),
		},
	}

	// A lone trial equals its own median; never strictly worse.
	if cancel := p.Evaluate(snap, 2); len(cancel) != 0 {
		t.Fatalf("single trial cancelled: %v", cancel)
	}
}
