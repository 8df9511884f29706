package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gotune/pkg/model"
	"github.com/spf13/cobra"
)

func newBestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "best <run_id>",
		Short: "Show the best completed trial of a tuning run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/runs/" + args[0] + "/best")
			if err != nil {
				return fmt.Errorf("get best trial: %w", err)
			}
			var trial model.Trial
			if err := json.Unmarshal(resp.Data, &trial); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Best trial: %s\n", trial.ID)
			if trial.FinalValue != nil {
				fmt.Printf("  Value:  %.6g\n", *trial.FinalValue)
			}
			fmt.Printf("  Config: %s\n", formatConfig(trial.Config))
			return nil
		},
	}
}
