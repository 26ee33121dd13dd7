// Appliancectl drives the management REST API of a network appliance.
//
// It waits for the appliance to become ready or active, loads and saves the
// system configuration, applies batches of changes in a single transaction,
// and manages device trust, device groups and config sync for clustering.
//
// Usage:
//
//	appliancectl [command] [flags]
//
// Connection settings come from a saved profile (see 'appliancectl profile')
// and can be overridden per run with --host, --port and --user.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/metrics"
	"github.com/muurk/appliancectl/internal/tracing"
	"github.com/muurk/appliancectl/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var shutdownTracing = func(context.Context) error { return nil }

var rootCmd = &cobra.Command{
	Use:   "appliancectl",
	Short: "Network appliance management client",
	Long: `A command line client for the management REST API of a network appliance.

Waits for readiness and failover state, runs configuration load/save,
applies atomic transactions, and manages trust domains, device groups
and config sync.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(flags.logLevel); err != nil {
			return err
		}
		shutdown, err := tracing.Setup(flags.trace, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		shutdownTracing = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		defer logging.Sync()
		if err := shutdownTracing(cmd.Context()); err != nil {
			logging.Warn("Failed to flush traces", zap.Error(err))
		}
		if flags.metricsFile == "" {
			return nil
		}
		if err := metrics.WriteTextfile(flags.metricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	flags.register(rootCmd)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "appliancectl %s\n", version.Full())
	},
}
