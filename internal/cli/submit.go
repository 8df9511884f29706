package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <declaration.yaml>",
		Short: "Submit a tuning run declaration",
		Long:  "Read a tuning run declaration (YAML or JSON) and submit it to the gotune server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read declaration: %w", err)
			}

			contentType := "application/x-yaml"
			if strings.EqualFold(filepath.Ext(path), ".json") {
				contentType = "application/json"
			}

			resp, err := client.PostRaw("/api/v1/runs", contentType, data)
			if err != nil {
				return fmt.Errorf("submit run: %w", err)
			}

			var run map[string]any
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, ok := run["id"].(string)
			if !ok {
				return fmt.Errorf("response missing 'id' field")
			}
			state, _ := run["state"].(string)
			fmt.Printf("Run submitted: %s (state: %s)\n", id, state)
			return nil
		},
	}
}
