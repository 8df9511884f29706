// Package config holds server configuration.
package config

// ServerConfig holds configuration for the gotune server.
type ServerConfig struct {
	Addr      string // Listen address (default ":8080")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	DBPath    string // SQLite database path (default ~/.gotune/gotune.db, ":memory:" for testing)
	WorkDir   string // Root directory for per-trial working directories (default os.TempDir())

	// MaxActiveRuns is the server-wide cap on simultaneously active
	// tuning runs. Individual trial concurrency is per-run
	// (max_concurrent_runs in the run config).
	MaxActiveRuns int
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
		MaxActiveRuns: 4,
	}
}
