package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <run_id>",
		Short: "Abort a tuning run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Post("/api/v1/runs/"+args[0]+"/abort", nil); err != nil {
				return fmt.Errorf("abort run: %w", err)
			}
			fmt.Printf("Run %s aborting\n", args[0])
			return nil
		},
	}
}
