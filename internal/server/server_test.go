package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/gotune/internal/config"
	"github.com/me/gotune/internal/executor"
	"github.com/me/gotune/internal/logging"
	"github.com/me/gotune/internal/scheduler"
	"github.com/me/gotune/internal/store"
	"github.com/me/gotune/pkg/model"
	"github.com/me/gotune/pkg/space"
)

func spaceChoice(name string, values ...any) space.ParamSpec {
	return space.ParamSpec{Name: name, Distribution: space.DistChoice, Values: values}
}

// stubExecutor completes each trial with a single metric report equal
// to its "x" parameter. Trials hang when slow is set, until cancelled.
type stubExecutor struct {
	slow bool

	mu        sync.Mutex
	cancelled map[string]chan struct{}
}

func newStubExecutor(slow bool) *stubExecutor {
	return &stubExecutor{slow: slow, cancelled: make(map[string]chan struct{})}
}

func (e *stubExecutor) Type() model.ExecutorType { return model.ExecutorTypeLocal }

func (e *stubExecutor) Dispatch(_ context.Context, trial *model.Trial, sink executor.EventSink) error {
	stop := make(chan struct{})
	e.mu.Lock()
	e.cancelled[trial.ID] = stop
	e.mu.Unlock()

	x, _ := trial.Config["x"].(float64)
	go func() {
		sink.Metric(trial.ID, 1, map[string]float64{"accuracy": x})
		if e.slow {
			select {
			case <-stop:
				sink.Finished(trial.ID, model.TrialStateCancelled, "")
			case <-time.After(30 * time.Second):
				sink.Finished(trial.ID, model.TrialStateCompleted, "")
			}
			return
		}
		sink.Finished(trial.ID, model.TrialStateCompleted, "")
	}()
	return nil
}

func (e *stubExecutor) Cancel(_ context.Context, trialID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stop, ok := e.cancelled[trialID]; ok {
		close(stop)
		delete(e.cancelled, trialID)
	}
	return nil
}

func newTestServer(t *testing.T, exec executor.Executor) *httptest.Server {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := executor.NewRegistry(logging.Discard())
	reg.Register(model.ExecutorTypeLocal, func(_ *model.TuningRun) (executor.Executor, error) {
		return exec, nil
	})
	mgr := scheduler.NewManager(st, reg, 4, logging.Discard())
	t.Cleanup(mgr.Shutdown)

	srv := New(config.DefaultServerConfig(), st, mgr, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type envelope struct {
	Status     string            `json:"status"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func doJSON(t *testing.T, method, url, contentType string, body []byte) (int, *envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, &env
}

func gridDeclJSON(t *testing.T) []byte {
	t.Helper()
	decl := model.RunConfig{
		Name:              "api-test",
		Metric:            "accuracy",
		Goal:              model.GoalMaximize,
		MaxTotalRuns:      2,
		MaxConcurrentRuns: 1,
		Sampling:          model.SamplingConfig{Strategy: model.StrategyGrid},
	}
	decl.Space = append(decl.Space, spaceChoice("x", 0.3, 0.8))
	data, err := json.Marshal(decl)
	if err != nil {
		t.Fatalf("marshal decl: %v", err)
	}
	return data
}

func waitForRunState(t *testing.T, baseURL, runID string, want model.RunState) *model.TuningRun {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		code, env := doJSON(t, http.MethodGet, baseURL+"/api/v1/runs/"+runID, "", nil)
		if code != http.StatusOK {
			t.Fatalf("get run: status %d", code)
		}
		var run model.TuningRun
		if err := json.Unmarshal(env.Data, &run); err != nil {
			t.Fatalf("unmarshal run: %v", err)
		}
		if run.State == want {
			return &run
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("run %s never reached %s", runID, want)
	return nil
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newStubExecutor(false))

	code, env := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("health status = %q", health.Status)
	}
}

func TestRunLifecycleOverAPI(t *testing.T) {
	ts := newTestServer(t, newStubExecutor(false))

	code, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs", "application/json", gridDeclJSON(t))
	if code != http.StatusCreated {
		t.Fatalf("create: status %d, error %+v", code, env.Error)
	}
	var run model.TuningRun
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if !strings.HasPrefix(run.ID, "run_") {
		t.Fatalf("run ID = %q", run.ID)
	}

	final := waitForRunState(t, ts.URL, run.ID, model.RunStateCompleted)
	if final.BestTrialID == "" {
		t.Fatal("no best trial recorded")
	}

	// Best trial is the x=0.8 configuration.
	code, env = doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs/"+run.ID+"/best", "", nil)
	if code != http.StatusOK {
		t.Fatalf("best: status %d", code)
	}
	var best model.Trial
	if err := json.Unmarshal(env.Data, &best); err != nil {
		t.Fatalf("unmarshal best: %v", err)
	}
	if best.FinalValue == nil || *best.FinalValue != 0.8 {
		t.Errorf("best final value = %v, want 0.8", best.FinalValue)
	}

	// Ranking is best to worst.
	code, env = doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs/"+run.ID+"/ranking", "", nil)
	if code != http.StatusOK {
		t.Fatalf("ranking: status %d", code)
	}
	var ranked []*model.Trial
	if err := json.Unmarshal(env.Data, &ranked); err != nil {
		t.Fatalf("unmarshal ranking: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranking size = %d, want 2", len(ranked))
	}
	if *ranked[0].FinalValue < *ranked[1].FinalValue {
		t.Error("ranking not best-first")
	}

	// Trial summaries carry the latest report.
	code, env = doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs/"+run.ID+"/trials", "", nil)
	if code != http.StatusOK {
		t.Fatalf("trials: status %d", code)
	}
	var summaries []*model.TrialSummary
	if err := json.Unmarshal(env.Data, &summaries); err != nil {
		t.Fatalf("unmarshal summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	for _, summary := range summaries {
		if summary.Reports != 1 || summary.LastInterval != 1 {
			t.Errorf("summary = %+v", summary)
		}
	}

	// Full metric history per trial.
	code, env = doJSON(t, http.MethodGet, ts.URL+"/api/v1/trials/"+best.ID+"/metrics", "", nil)
	if code != http.StatusOK {
		t.Fatalf("metrics: status %d", code)
	}
	var reports []*model.MetricReport
	if err := json.Unmarshal(env.Data, &reports); err != nil {
		t.Fatalf("unmarshal reports: %v", err)
	}
	if len(reports) != 1 || reports[0].Value != 0.8 {
		t.Errorf("reports = %+v", reports)
	}

	// List endpoint paginates.
	code, env = doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs", "", nil)
	if code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	if env.Pagination == nil || env.Pagination.Total != 1 {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}

func TestCreateRun_YAML(t *testing.T) {
	ts := newTestServer(t, newStubExecutor(false))

	decl := `
name: yaml-test
metric: accuracy
goal: maximize
max_total_runs: 1
max_concurrent_runs: 1
sampling:
  strategy: grid
space:
  - name: x
    distribution: choice
    values: [0.5]
`
	code, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs", "application/x-yaml", []byte(decl))
	if code != http.StatusCreated {
		t.Fatalf("create: status %d, error %+v", code, env.Error)
	}
	var run model.TuningRun
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	waitForRunState(t, ts.URL, run.ID, model.RunStateCompleted)
}

func TestCreateRun_ValidationErrors(t *testing.T) {
	ts := newTestServer(t, newStubExecutor(false))

	// Missing metric and goal.
	code, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs", "application/json",
		[]byte(`{"name":"bad","max_total_runs":1,"max_concurrent_runs":1,"sampling":{"strategy":"grid"}}`))
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Fatalf("error = %+v", env.Error)
	}
	if len(env.Error.Details) == 0 {
		t.Error("validation error has no field details")
	}

	// Bayesian + policy conflict.
	conflict := `{
		"name":"conflict","metric":"accuracy","goal":"maximize",
		"max_total_runs":4,"max_concurrent_runs":1,
		"sampling":{"strategy":"bayesian"},
		"policy":{"name":"median_stopping","evaluation_interval":1},
		"space":[{"name":"x","distribution":"uniform","low":0,"high":1}]
	}`
	code, env = doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs", "application/json", []byte(conflict))
	if code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrConflict {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	ts := newTestServer(t, newStubExecutor(false))

	code, env := doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs/run_missing", "", nil)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestAbortRun(t *testing.T) {
	ts := newTestServer(t, newStubExecutor(true))

	code, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs", "application/json", gridDeclJSON(t))
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	var run model.TuningRun
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	waitForRunState(t, ts.URL, run.ID, model.RunStateRunning)

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs/"+run.ID+"/abort", "", nil)
	if code != http.StatusOK {
		t.Fatalf("abort: status %d", code)
	}
	waitForRunState(t, ts.URL, run.ID, model.RunStateAborted)

	// A second abort conflicts.
	code, env = doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs/"+run.ID+"/abort", "", nil)
	if code != http.StatusConflict {
		t.Fatalf("second abort: status %d, error %+v", code, env.Error)
	}
}

func TestBestTrial_NoneCompleted(t *testing.T) {
	ts := newTestServer(t, newStubExecutor(true))

	code, env := doJSON(t, http.MethodPost, ts.URL+"/api/v1/runs", "application/json", gridDeclJSON(t))
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	var run model.TuningRun
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}

	code, env = doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs/"+run.ID+"/best", "", nil)
	if code != http.StatusNotFound {
		t.Fatalf("best: status %d, want 404", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Fatalf("error = %+v", env.Error)
	}
}
