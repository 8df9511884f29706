package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/me/gotune/pkg/model"
)

// metricLine is the JSON shape trial processes write to stdout, one
// report per line. Lines that do not parse as this shape are ignored.
type metricLine struct {
	Interval int                `json:"interval"`
	Metrics  map[string]float64 `json:"metrics"`
}

// LocalExecutor runs trials as local OS processes. Each trial gets its
// own working directory, its configuration as GOTUNE_PARAM_* environment
// variables plus a JSON config file, and a stdout reader that forwards
// metric lines to the sink as they appear.
type LocalExecutor struct {
	logger  *slog.Logger
	workDir string
	command []string

	mu    sync.Mutex
	procs map[string]*trialProc
}

type trialProc struct {
	cmd       *exec.Cmd
	cancelled bool
}

// NewLocalExecutor creates a LocalExecutor rooted at workDir running the
// given command for every trial. If workDir is empty, os.TempDir() is used.
func NewLocalExecutor(workDir string, command []string, logger *slog.Logger) *LocalExecutor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &LocalExecutor{
		workDir: workDir,
		command: command,
		logger:  logger.With("component", "local-executor"),
		procs:   make(map[string]*trialProc),
	}
}

// Type returns model.ExecutorTypeLocal.
func (e *LocalExecutor) Type() model.ExecutorType {
	return model.ExecutorTypeLocal
}

// Dispatch starts the trial process and returns once it is running.
// Metric lines and the terminal state arrive on the sink from a
// background goroutine.
func (e *LocalExecutor) Dispatch(ctx context.Context, trial *model.Trial, sink EventSink) error {
	if len(e.command) == 0 {
		return fmt.Errorf("trial %s: no trial command configured", trial.ID)
	}

	trialDir := filepath.Join(e.workDir, trial.ID)
	if err := os.MkdirAll(trialDir, 0o755); err != nil {
		return fmt.Errorf("trial %s: create work dir: %w", trial.ID, err)
	}

	configPath := filepath.Join(trialDir, "config.json")
	data, err := json.Marshal(trial.Config)
	if err != nil {
		return fmt.Errorf("trial %s: marshal config: %w", trial.ID, err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("trial %s: write config file: %w", trial.ID, err)
	}

	cmd := exec.Command(e.command[0], e.command[1:]...)
	cmd.Dir = trialDir
	cmd.Env = trialEnv(trial, configPath)
	// Own process group so Cancel can kill the trial and its children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("trial %s: stdout pipe: %w", trial.ID, err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("trial %s: start command: %w", trial.ID, err)
	}

	proc := &trialProc{cmd: cmd}
	e.mu.Lock()
	e.procs[trial.ID] = proc
	e.mu.Unlock()

	e.logger.Debug("trial dispatched",
		"trial_id", trial.ID,
		"pid", cmd.Process.Pid,
		"work_dir", trialDir,
	)

	go e.collect(trial.ID, proc, stdout, &stderrBuf, sink)
	return nil
}

// collect streams metric lines until the process exits, then reports
// the terminal state.
func (e *LocalExecutor) collect(trialID string, proc *trialProc, stdout io.Reader, stderrBuf *bytes.Buffer, sink EventSink) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var report metricLine
		if err := json.Unmarshal(line, &report); err != nil {
			e.logger.Debug("ignoring unparseable stdout line", "trial_id", trialID, "error", err)
			continue
		}
		if report.Interval < 1 || len(report.Metrics) == 0 {
			continue
		}
		sink.Metric(trialID, report.Interval, report.Metrics)
	}

	waitErr := proc.cmd.Wait()

	e.mu.Lock()
	cancelled := proc.cancelled
	delete(e.procs, trialID)
	e.mu.Unlock()

	switch {
	case cancelled:
		sink.Finished(trialID, model.TrialStateCancelled, "")
	case waitErr == nil:
		sink.Finished(trialID, model.TrialStateCompleted, "")
	default:
		sink.Finished(trialID, model.TrialStateFailed, failureMessage(waitErr, stderrBuf))
	}
}

// Cancel kills the trial's process group. Unknown trial IDs are treated
// as already finished.
func (e *LocalExecutor) Cancel(_ context.Context, trialID string) error {
	e.mu.Lock()
	proc, ok := e.procs[trialID]
	if ok {
		proc.cancelled = true
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	pid := proc.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("trial %s: kill process group %d: %w", trialID, pid, err)
	}
	e.logger.Debug("trial cancelled", "trial_id", trialID, "pid", pid)
	return nil
}

// trialEnv builds the trial process environment: the parent environment
// plus GOTUNE_TRIAL_ID, GOTUNE_RUN_ID, GOTUNE_CONFIG_FILE, and one
// GOTUNE_PARAM_<NAME> entry per hyperparameter.
func trialEnv(trial *model.Trial, configPath string) []string {
	env := append(os.Environ(),
		"GOTUNE_TRIAL_ID="+trial.ID,
		"GOTUNE_RUN_ID="+trial.RunID,
		"GOTUNE_CONFIG_FILE="+configPath,
	)
	for name, value := range trial.Config {
		env = append(env, "GOTUNE_PARAM_"+envName(name)+"="+formatParamValue(value))
	}
	return env
}

// envName uppercases the parameter name and replaces everything outside
// [A-Z0-9_] with an underscore.
func envName(name string) string {
	upper := strings.ToUpper(name)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func formatParamValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func failureMessage(waitErr error, stderrBuf *bytes.Buffer) string {
	msg := waitErr.Error()
	if tail := stderrTail(stderrBuf.String(), 512); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// stderrTail returns the trimmed last max bytes of stderr.
func stderrTail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}
