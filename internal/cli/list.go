package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tuning runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/runs"
			if state != "" {
				path += "?state=" + state
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			var runs []map[string]any
			if err := json.Unmarshal(resp.Data, &runs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("%-42s %-20s %-10s %s\n", "ID", "NAME", "STATE", "CREATED")
			for _, run := range runs {
				id, _ := run["id"].(string)
				name, _ := run["name"].(string)
				runState, _ := run["state"].(string)
				created, _ := run["created_at"].(string)
				fmt.Printf("%-42s %-20s %-10s %s\n", id, name, runState, created)
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("(%d of %d runs shown)\n", len(runs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by run state")
	return cmd
}
