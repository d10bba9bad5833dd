// Package commands implements the imageflow CLI.
package commands

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pellucid/imageflow/internal/logger"
	"github.com/pellucid/imageflow/pkg/config"
	"github.com/pellucid/imageflow/pkg/metrics"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "imageflow",
	Short: "imageflow - tiered image fetching with observable loads",
	Long: `imageflow fetches images over HTTP through a tiered cache
(memory, disk) and exposes each load as an observable state with progress,
partial results, and cancellation.

Use "imageflow [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/imageflow/config.yaml)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cachedCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration honoring the global --config flag and
// initializes logging and metrics from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		if cfg.Metrics.ListenAddr != "" {
			go serveMetrics(cfg.Metrics.ListenAddr)
		}
	}
	return cfg, nil
}

// serveMetrics exposes /metrics for the lifetime of the command.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint failed", "addr", addr, "error", err)
	}
}
