// Package main implements the chunkstore command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arkilian/chunkstore/internal/app"
	"github.com/arkilian/chunkstore/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	dataDir    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "chunkstore",
		Short:         "Columnar chunk store with dataframe queries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Base directory for the manifest and local storage")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newIngestCommand(flags),
		newQueryCommand(flags),
		newStatsCommand(flags),
		newReconcileCommand(flags),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig layers the config file, the environment and flags, in that
// order of increasing priority.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(flags.configFile); err != nil {
			return nil, err
		}
	}

	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.logLevel != "" {
		level, err := zapcore.ParseLevel(flags.logLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func openApp(ctx context.Context, flags *globalFlags) (*app.App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.New(ctx, cfg, os.Stderr)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chunkstore version %s (commit: %s)\n", version, commit)
		},
	}
}
