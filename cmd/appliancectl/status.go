package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/retry"
	"github.com/muurk/appliancectl/internal/ui"
)

var (
	pingAttempts int
	pingDelay    time.Duration
)

func init() {
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(activeCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(getCmd)

	pingCmd.Flags().IntVar(&pingAttempts, "attempts", retry.MediumPolicy.MaxAttempts, "Ping attempts before giving up")
	pingCmd.Flags().DurationVar(&pingDelay, "delay", retry.MediumPolicy.Delay, "Delay between ping attempts")
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Wait until the appliance is ready for configuration",
	Long: `Wait until every management subsystem answers and the control plane
reports the running phase.

The readiness policy comes from the profile's retry preferences.`,
	Example: `  appliancectl ready --host 10.0.0.1
  appliancectl ready --no-retry`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		return report(cmd, "Appliance ready", s.target(), s.app.Ready(cmd.Context(), s.prefs.Ready))
	},
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Wait until the appliance is the active failover member",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		return report(cmd, "Appliance active", s.target(), s.app.Active(cmd.Context(), s.prefs.Active))
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping <address>",
	Short: "Ping an address from the appliance",
	Example: `  # Check the peer is reachable from the appliance
  appliancectl ping 10.0.0.2 --attempts 10 --delay 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		p := retry.Policy{MaxAttempts: pingAttempts, Delay: pingDelay}
		return report(cmd, args[0]+" reachable", s.target(), s.app.Ping(cmd.Context(), args[0], p))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print the JSON resource at a management path",
	Example: `  appliancectl get /tm/cm/device-group
  appliancectl get /tm/sys/mcp-state/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		raw, err := s.app.List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			out.Reset()
			out.Write(raw)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

// report prints a result box for a finished single-shot command.
func report(cmd *cobra.Command, title, target string, err error) error {
	p := ui.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		p.PrintError(title, err, restapi.GetTroubleshootingHint(err))
		return err
	}
	p.PrintSuccess(title, []ui.Detail{{Key: "Appliance", Value: target}})
	return nil
}
