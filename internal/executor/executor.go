package executor

import (
	"context"

	"github.com/me/gotune/pkg/model"
)

// EventSink receives asynchronous results from a dispatched trial. The
// scheduler implements it; executors call it from their own goroutines,
// so implementations must be safe for concurrent use.
type EventSink interface {
	// Metric delivers one intermediate report from the trial process.
	Metric(trialID string, interval int, metrics map[string]float64)

	// Finished delivers the trial's terminal state exactly once per
	// dispatch. message carries failure detail and is empty otherwise.
	Finished(trialID string, state model.TrialState, message string)
}

// Executor is a pluggable backend that runs trials.
type Executor interface {
	// Type returns the executor type identifier.
	Type() model.ExecutorType

	// Dispatch starts the trial asynchronously. Results arrive on the
	// sink; an error means the trial never started.
	Dispatch(ctx context.Context, trial *model.Trial, sink EventSink) error

	// Cancel requests termination of a dispatched trial. Cancelling a
	// trial that already finished is a no-op.
	Cancel(ctx context.Context, trialID string) error
}
