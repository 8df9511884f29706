// tune-runner executes a single tuning run in-process, without a server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/gotune/internal/executor"
	"github.com/me/gotune/internal/logging"
	"github.com/me/gotune/internal/scheduler"
	"github.com/me/gotune/internal/store"
	"github.com/me/gotune/pkg/model"

	"github.com/google/uuid"
)

var (
	workDir   string
	dbPath    string
	verbose   bool
	quiet     bool
	logFormat string
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "tune-runner [flags] <declaration-file>",
		Short:   "Run a hyperparameter tuning declaration locally",
		Version: version,
		Long: `tune-runner executes one tuning run from a YAML or JSON declaration,
dispatching trials as local processes, and prints the ranking when the
run finishes.

Examples:
  # Run a declaration and print the ranking
  tune-runner sweep.yaml

  # Validate a declaration without running it
  tune-runner validate sweep.yaml
`,
		Args: cobra.ExactArgs(1),
		RunE: runExecute,
	}

	rootCmd.PersistentFlags().StringVar(&workDir, "work-dir", "", "Root directory for trial working directories (default: temp dir)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ":memory:", "SQLite database path (default: in-memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := "info"
	if verbose {
		level = "debug"
	}
	if quiet {
		level = "error"
	}
	return logging.NewLogger(logging.ParseLevel(level), logFormat)
}

func loadDeclaration(path string) (*model.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declaration: %w", err)
	}

	var cfg model.RunConfig
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse declaration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newRun(cfg *model.RunConfig) *model.TuningRun {
	return &model.TuningRun{
		ID:        "run_" + uuid.New().String(),
		Name:      cfg.Name,
		State:     model.RunStatePending,
		Config:    *cfg,
		CreatedAt: time.Now().UTC(),
	}
}

func runExecute(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadDeclaration(args[0])
	if err != nil {
		return err
	}
	if len(cfg.Command) == 0 {
		return fmt.Errorf("declaration has no trial command")
	}

	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	run := newRun(cfg)
	if err := st.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	dir := workDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "tune-runner-")
		if err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
	}
	exec := executor.NewLocalExecutor(filepath.Join(dir, run.ID), cfg.Command, logger)

	sched, err := scheduler.New(st, exec, run, logger)
	if err != nil {
		return err
	}

	// Handle signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, aborting run")
		sched.Abort()
	}()

	logger.Info("run starting", "run_id", run.ID, "strategy", cfg.Sampling.Strategy, "goal", cfg.Goal, "metric", cfg.Metric)
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	return printResults(ctx, st, run.ID)
}

func printResults(ctx context.Context, st store.Store, runID string) error {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	trials, err := st.ListTrialsByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load trials: %w", err)
	}

	fmt.Printf("Run %s: %s (%d trials)\n\n", run.ID, run.State, len(trials))

	ranked := model.RankTrials(trials, run.Config.Goal)
	if len(ranked) == 0 {
		fmt.Println("No trial completed with a reported value.")
		return nil
	}

	fmt.Printf("%-5s %-44s %-12s %s\n", "RANK", "ID", "VALUE", "CONFIG")
	for i, trial := range ranked {
		config, _ := json.Marshal(trial.Config)
		fmt.Printf("%-5d %-44s %-12.6g %s\n", i+1, trial.ID, *trial.FinalValue, config)
	}

	best := ranked[0]
	fmt.Printf("\nBest: %s (%s = %.6g)\n", best.ID, run.Config.Metric, *best.FinalValue)
	return nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <declaration-file>",
		Short: "Validate a tuning declaration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadDeclaration(args[0]); err != nil {
				return err
			}
			fmt.Println("Declaration is valid")
			return nil
		},
	}
}
