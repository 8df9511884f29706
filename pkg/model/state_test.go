package model

import "testing"

func TestTrialStateTransitions(t *testing.T) {
	tests := []struct {
		from, to TrialState
		want     bool
	}{
		{TrialStatePending, TrialStateRunning, true},
		{TrialStatePending, TrialStateFailed, true},
		{TrialStateRunning, TrialStateCompleted, true},
		{TrialStateRunning, TrialStateCancelled, true},
		{TrialStateRunning, TrialStateFailed, true},
		{TrialStateCompleted, TrialStateRunning, false},
		{TrialStateCancelled, TrialStateCompleted, false},
		{TrialStateFailed, TrialStateRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTrialStateIsTerminal(t *testing.T) {
	for _, s := range []TrialState{TrialStateCompleted, TrialStateCancelled, TrialStateFailed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TrialState{TrialStatePending, TrialStateRunning} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRunStateTransitions(t *testing.T) {
	if !RunStatePending.CanTransitionTo(RunStateRunning) {
		t.Error("PENDING → RUNNING should be valid")
	}
	if !RunStateRunning.CanTransitionTo(RunStateCompleted) {
		t.Error("RUNNING → COMPLETED should be valid")
	}
	if RunStateCompleted.CanTransitionTo(RunStateRunning) {
		t.Error("COMPLETED → RUNNING should be invalid")
	}
}

func TestGoalBetter(t *testing.T) {
	if !GoalMaximize.Better(0.9, 0.5) {
		t.Error("maximize: 0.9 should beat 0.5")
	}
	if !GoalMinimize.Better(0.5, 0.9) {
		t.Error("minimize: 0.5 should beat 0.9")
	}
	if GoalMaximize.Better(0.5, 0.5) {
		t.Error("equal values are not strictly better")
	}
	if !GoalMaximize.Worse(0.5, 0.9) {
		t.Error("maximize: 0.5 should be worse than 0.9")
	}
}
