package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gotune/pkg/model"
	"github.com/spf13/cobra"
)

func newTrialsCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "trials <run_id>",
		Short: "List the trials of a tuning run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/runs/" + args[0] + "/trials"
			if state != "" {
				path += "?state=" + state
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list trials: %w", err)
			}
			var summaries []*model.TrialSummary
			if err := json.Unmarshal(resp.Data, &summaries); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("%-4s %-44s %-10s %-9s %-10s %s\n", "SEQ", "ID", "STATE", "REPORTS", "LAST", "CONFIG")
			for _, s := range summaries {
				last := "-"
				if s.Reports > 0 {
					last = fmt.Sprintf("%.4g", s.LastValue)
				}
				fmt.Printf("%-4d %-44s %-10s %-9d %-10s %s\n",
					s.Trial.Seq, s.Trial.ID, s.Trial.State, s.Reports, last, formatConfig(s.Trial.Config))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by trial state")
	return cmd
}

func formatConfig(cfg model.Configuration) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("%v", cfg)
	}
	return string(data)
}
