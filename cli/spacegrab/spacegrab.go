package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kmoussa/spacegrab/internal/cli"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spacegrab",
		Short: "A concurrent object-storage download scheduler",
		Long: `spacegrab downloads objects from S3-compatible Spaces buckets with:
- CLI: fetch objects with live per-transfer progress
- Library: contract queueing, a fixed connection pool and observer hooks
- Tooling: key=value credential files and YAML scheduler config`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.InitLogger(logLevel, logFormat)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: built-in defaults)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.LogLevel = &logLevel
	cli.LogFormat = &logFormat

	// Add subcommands
	cmd.AddCommand(
		cli.NewFetchCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
