// Package cmd provides the CLI commands for digitalmemory.
package cmd

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dzheng/digitalmemory/internal/config"
	"github.com/dzheng/digitalmemory/internal/logging"
	"github.com/dzheng/digitalmemory/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the digitalmemory CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "digitalmemory",
		Short:   "Voice-journal retrieval core: index, serve, and query a personal journal",
		Long:    `digitalmemory indexes transcribed voice-journal entries and serves hybrid (keyword + vector) retrieval and a date-aware chat agent over them, entirely locally.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("digitalmemory version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.digitalmemory/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.digitalmemory/logs/")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves the effective config.Config for this invocation,
// following the override order in spec section 6: defaults, then the
// YAML file named by --config (or the default path if unset), then
// environment variables.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(config.DefaultDataDir(), "config.yaml")
	}
	return config.Load(path)
}

// setupLogging wires slog per --debug, matching the teacher's
// startProfilingAndLogging hook.
func setupLogging() func() {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}
