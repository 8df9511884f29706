package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gotune/pkg/model"
	"github.com/spf13/cobra"
)

func newRankingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranking <run_id>",
		Short: "Show completed trials ranked best to worst",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/runs/" + args[0] + "/ranking")
			if err != nil {
				return fmt.Errorf("get ranking: %w", err)
			}
			var trials []*model.Trial
			if err := json.Unmarshal(resp.Data, &trials); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("%-5s %-44s %-12s %s\n", "RANK", "ID", "VALUE", "CONFIG")
			for i, trial := range trials {
				value := "-"
				if trial.FinalValue != nil {
					value = fmt.Sprintf("%.6g", *trial.FinalValue)
				}
				fmt.Printf("%-5d %-44s %-12s %s\n", i+1, trial.ID, value, formatConfig(trial.Config))
			}
			return nil
		},
	}
}
