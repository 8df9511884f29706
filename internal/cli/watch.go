package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/me/gotune/pkg/model"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <run_id>",
		Short: "Follow a tuning run's events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Stream("/api/v1/runs/" + args[0] + "/events")
			if err != nil {
				return fmt.Errorf("open event stream: %w", err)
			}
			defer resp.Body.Close()

			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)

			var event string
			for scanner.Scan() {
				line := scanner.Text()
				switch {
				case strings.HasPrefix(line, "event: "):
					event = strings.TrimPrefix(line, "event: ")
				case strings.HasPrefix(line, "data: "):
					printEvent(event, strings.TrimPrefix(line, "data: "))
					if event == "complete" {
						return nil
					}
				}
			}
			return scanner.Err()
		},
	}
}

func printEvent(event, data string) {
	switch event {
	case "init", "run", "complete":
		var run model.TuningRun
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return
		}
		fmt.Printf("run %s: %s\n", run.ID, run.State)
	case "trial":
		var trial model.Trial
		if err := json.Unmarshal([]byte(data), &trial); err != nil {
			return
		}
		fmt.Printf("  trial %d (%s): %s\n", trial.Seq, trial.ID, trial.State)
	case "metric":
		var report model.MetricReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			return
		}
		fmt.Printf("  trial %s interval %d: %.6g\n", report.TrialID, report.Interval, report.Value)
	}
}
