// Package cli implements the gotune command-line client.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/gotune/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking GOTUNE_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GOTUNE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the gotune CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gotune",
		Short: "gotune is a client for the gotune tuning server",
		Long:  "gotune submits, monitors, and manages hyperparameter tuning runs.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "gotune server URL (or GOTUNE_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newListCmd(),
		newStatusCmd(),
		newTrialsCmd(),
		newBestCmd(),
		newRankingCmd(),
		newAbortCmd(),
		newWatchCmd(),
	)

	return root
}
