package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gotune/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show the status of a tuning run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/runs/" + id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			var run model.TuningRun
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Run: %s\n", run.ID)
			fmt.Printf("  Name:     %s\n", run.Name)
			fmt.Printf("  State:    %s\n", run.State)
			fmt.Printf("  Goal:     %s %s\n", run.Config.Goal, run.Config.Metric)
			fmt.Printf("  Strategy: %s\n", run.Config.Sampling.Strategy)
			if run.Config.Policy != nil {
				fmt.Printf("  Policy:   %s\n", run.Config.Policy.Name)
			}

			resp, err = client.Get("/api/v1/runs/" + id + "/trials")
			if err != nil {
				return fmt.Errorf("list trials: %w", err)
			}
			var summaries []*model.TrialSummary
			if err := json.Unmarshal(resp.Data, &summaries); err != nil {
				return fmt.Errorf("parse trials: %w", err)
			}

			counts := make(map[model.TrialState]int)
			for _, s := range summaries {
				counts[s.Trial.State]++
			}
			fmt.Printf("  Trials:   %d total", len(summaries))
			for _, st := range []model.TrialState{
				model.TrialStateRunning, model.TrialStateCompleted,
				model.TrialStateCancelled, model.TrialStateFailed, model.TrialStatePending,
			} {
				if counts[st] > 0 {
					fmt.Printf(", %d %s", counts[st], st)
				}
			}
			fmt.Println()

			if run.BestTrialID != "" {
				fmt.Printf("  Best:     %s\n", run.BestTrialID)
			}
			if run.CompletedAt != nil {
				fmt.Printf("  Finished: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
