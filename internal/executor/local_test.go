package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/gotune/internal/logging"
	"github.com/me/gotune/pkg/model"
)

type metricEvent struct {
	trialID  string
	interval int
	metrics  map[string]float64
}

// recordSink captures executor events for assertions. done closes when
// Finished is called.
type recordSink struct {
	mu      sync.Mutex
	metrics []metricEvent
	state   model.TrialState
	message string
	done    chan struct{}
}

func newRecordSink() *recordSink {
	return &recordSink{done: make(chan struct{})}
}

func (s *recordSink) Metric(trialID string, interval int, metrics map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metricEvent{trialID, interval, metrics})
}

func (s *recordSink) Finished(trialID string, state model.TrialState, message string) {
	s.mu.Lock()
	s.state = state
	s.message = message
	s.mu.Unlock()
	close(s.done)
}

func (s *recordSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for Finished")
	}
}

func shExecutor(t *testing.T, script string) *LocalExecutor {
	t.Helper()
	return NewLocalExecutor(t.TempDir(), []string{"/bin/sh", "-c", script}, logging.Discard())
}

func testTrial(config model.Configuration) *model.Trial {
	return &model.Trial{
		ID:     "trial_test",
		RunID:  "run_test",
		Config: config,
		State:  model.TrialStateRunning,
	}
}

func TestLocalExecutor_DispatchAndMetrics(t *testing.T) {
	script := `
echo '{"interval":1,"metrics":{"accuracy":0.5}}'
echo "{\"interval\":2,\"metrics\":{\"accuracy\":$GOTUNE_PARAM_LR}}"
`
	e := shExecutor(t, script)
	sink := newRecordSink()

	if err := e.Dispatch(context.Background(), testTrial(model.Configuration{"lr": 0.9}), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sink.wait(t)

	if sink.state != model.TrialStateCompleted {
		t.Fatalf("state = %s (%s), want COMPLETED", sink.state, sink.message)
	}
	if len(sink.metrics) != 2 {
		t.Fatalf("got %d metric events, want 2: %+v", len(sink.metrics), sink.metrics)
	}
	if sink.metrics[0].interval != 1 || sink.metrics[0].metrics["accuracy"] != 0.5 {
		t.Errorf("first report = %+v", sink.metrics[0])
	}
	if sink.metrics[1].metrics["accuracy"] != 0.9 {
		t.Errorf("GOTUNE_PARAM_LR not passed through, report = %+v", sink.metrics[1])
	}
}

func TestLocalExecutor_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	e := NewLocalExecutor(dir, []string{"/bin/sh", "-c", "exit 0"}, logging.Discard())
	sink := newRecordSink()

	cfg := model.Configuration{"lr": 0.01, "units": 128.0}
	if err := e.Dispatch(context.Background(), testTrial(cfg), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sink.wait(t)

	data, err := os.ReadFile(filepath.Join(dir, "trial_test", "config.json"))
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	var got map[string]float64
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal config file: %v", err)
	}
	if got["lr"] != 0.01 || got["units"] != 128 {
		t.Errorf("config file = %v", got)
	}
}

func TestLocalExecutor_Failure(t *testing.T) {
	e := shExecutor(t, "echo boom >&2; exit 3")
	sink := newRecordSink()

	if err := e.Dispatch(context.Background(), testTrial(nil), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sink.wait(t)

	if sink.state != model.TrialStateFailed {
		t.Fatalf("state = %s, want FAILED", sink.state)
	}
	if !strings.Contains(sink.message, "exit status 3") {
		t.Errorf("message %q missing exit status", sink.message)
	}
	if !strings.Contains(sink.message, "boom") {
		t.Errorf("message %q missing stderr tail", sink.message)
	}
}

func TestLocalExecutor_Cancel(t *testing.T) {
	e := shExecutor(t, "sleep 30")
	sink := newRecordSink()

	if err := e.Dispatch(context.Background(), testTrial(nil), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := e.Cancel(context.Background(), "trial_test"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	sink.wait(t)

	if sink.state != model.TrialStateCancelled {
		t.Fatalf("state = %s, want CANCELLED", sink.state)
	}
}

func TestLocalExecutor_CancelUnknownTrial(t *testing.T) {
	e := shExecutor(t, "exit 0")
	if err := e.Cancel(context.Background(), "trial_gone"); err != nil {
		t.Fatalf("Cancel of unknown trial: %v", err)
	}
}

func TestLocalExecutor_IgnoresNonMetricOutput(t *testing.T) {
	script := `
echo "epoch 1 starting"
echo '{"not":"a metric line"}'
echo '{"interval":1,"metrics":{"loss":0.4}}'
echo '{broken json'
`
	e := shExecutor(t, script)
	sink := newRecordSink()

	if err := e.Dispatch(context.Background(), testTrial(nil), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sink.wait(t)

	if len(sink.metrics) != 1 {
		t.Fatalf("got %d metric events, want 1: %+v", len(sink.metrics), sink.metrics)
	}
	if sink.metrics[0].metrics["loss"] != 0.4 {
		t.Errorf("report = %+v", sink.metrics[0])
	}
}

func TestEnvName(t *testing.T) {
	cases := map[string]string{
		"learning_rate": "LEARNING_RATE",
		"batch-size":    "BATCH_SIZE",
		"optimizer.lr":  "OPTIMIZER_LR",
		"units2":        "UNITS2",
	}
	for in, want := range cases {
		if got := envName(in); got != want {
			t.Errorf("envName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(logging.Discard())
	dir := t.TempDir()
	r.Register(model.ExecutorTypeLocal, func(run *model.TuningRun) (Executor, error) {
		return NewLocalExecutor(filepath.Join(dir, run.ID), run.Config.Command, logging.Discard()), nil
	})

	run := &model.TuningRun{
		ID:     "run_test",
		Config: model.RunConfig{Command: []string{"true"}},
	}
	got, err := r.ForRun(run)
	if err != nil {
		t.Fatalf("ForRun: %v", err)
	}
	if got.Type() != model.ExecutorTypeLocal {
		t.Errorf("Type() = %s, want local", got.Type())
	}

	run.Config.Executor = "slurm"
	if _, err := r.ForRun(run); err == nil {
		t.Error("unregistered type should error")
	}
}
