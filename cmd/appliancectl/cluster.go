package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/appliancectl/internal/cluster"
	"github.com/muurk/appliancectl/internal/ui"
)

var (
	peerHost     string
	peerName     string
	peerUser     string
	peerPassword string
	assumeYes    bool

	groupType    string
	groupDevices []string
	groupOpts    cluster.DeviceGroupOptions

	syncDirection string
	syncForce     bool

	joinGroup        string
	joinConfigSyncIP string
)

func init() {
	rootCmd.AddCommand(clusterCmd)
	clusterCmd.AddCommand(trustCmd, groupCmd, configSyncIPCmd, syncCmd, joinCmd)
	trustCmd.AddCommand(trustAddCmd, trustRemoveCmd)
	groupCmd.AddCommand(groupCreateCmd, groupAddDeviceCmd, groupRemoveDeviceCmd, groupDeleteCmd)

	clusterCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask before destructive changes")

	for _, c := range []*cobra.Command{trustAddCmd, joinCmd} {
		c.Flags().StringVar(&peerHost, "peer", "", "Management address of the peer appliance")
		c.Flags().StringVar(&peerName, "peer-name", "", "Device name of the peer (default: --peer)")
		c.Flags().StringVar(&peerUser, "peer-user", "admin", "Management username on the peer")
		c.Flags().StringVar(&peerPassword, "peer-password", "", "Management password on the peer (default: same as --password)")
		_ = c.MarkFlagRequired("peer")
	}

	groupCreateCmd.Flags().StringVar(&groupType, "type", cluster.TypeSyncFailover, "Group type: sync-failover or sync-only")
	groupCreateCmd.Flags().StringSliceVar(&groupDevices, "device", nil, "Initial member device name (repeatable)")
	groupCreateCmd.Flags().BoolVar(&groupOpts.AutoSync, "auto-sync", false, "Enable automatic sync")
	groupCreateCmd.Flags().BoolVar(&groupOpts.SaveOnAutoSync, "save-on-auto-sync", false, "Save configuration after automatic sync")
	groupCreateCmd.Flags().BoolVar(&groupOpts.NetworkFailover, "network-failover", false, "Enable network failover")
	groupCreateCmd.Flags().BoolVar(&groupOpts.FullLoadOnSync, "full-load-on-sync", false, "Always push the full configuration")
	groupCreateCmd.Flags().BoolVar(&groupOpts.AsmSync, "asm-sync", false, "Sync application security policies")

	syncCmd.Flags().StringVar(&syncDirection, "direction", cluster.SyncToGroup, "Sync direction: to-group or from-group")
	syncCmd.Flags().BoolVar(&syncForce, "force-full-load-push", false, "Push the full configuration")

	joinCmd.Flags().StringVar(&joinGroup, "group", "", "Device group to join")
	joinCmd.Flags().StringVar(&joinConfigSyncIP, "config-sync-ip", "", "Address used for config sync (skipped when empty)")
	_ = joinCmd.MarkFlagRequired("group")
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage device trust, device groups and config sync",
}

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage the local trust domain",
}

var trustAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a peer appliance to the local trust domain",
	Example: `  appliancectl cluster trust add --peer 10.0.0.2 --peer-password secret`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		err = s.app.Cluster().AddToTrust(cmd.Context(), peerDeviceName(), peerHost, peerUser, s.peerSecret())
		return report(cmd, peerDeviceName()+" trusted", s.target(), err)
	},
}

var trustRemoveCmd = &cobra.Command{
	Use:   "remove <device-name>",
	Short: "Remove a device from the local trust domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(cmd, "REMOVE FROM TRUST", args[0]+" will no longer be trusted by this appliance") {
			return errCancelled
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		return report(cmd, args[0]+" removed from trust", s.target(), s.app.Cluster().RemoveFromTrust(cmd.Context(), args[0]))
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage device groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a device group",
	Example: `  appliancectl cluster group create dg1 --type sync-failover --device bigip1 --auto-sync`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		err = s.app.Cluster().CreateDeviceGroup(cmd.Context(), args[0], groupType, groupDevices, &groupOpts)
		return report(cmd, "Device group "+args[0]+" created", s.target(), err)
	},
}

var groupAddDeviceCmd = &cobra.Command{
	Use:   "add-device <group> <device-name>",
	Short: "Add a device to a device group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		err = s.app.Cluster().AddToDeviceGroup(cmd.Context(), args[1], args[0])
		return report(cmd, args[1]+" in "+args[0], s.target(), err)
	},
}

var groupRemoveDeviceCmd = &cobra.Command{
	Use:   "remove-device <group> <device-name>",
	Short: "Remove a device from a device group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(cmd, "REMOVE FROM DEVICE GROUP", args[1]+" will leave device group "+args[0]) {
			return errCancelled
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		err = s.app.Cluster().RemoveFromDeviceGroup(cmd.Context(), args[1], args[0])
		return report(cmd, args[1]+" removed from "+args[0], s.target(), err)
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a device group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(cmd, "DELETE DEVICE GROUP", "Device group "+args[0]+" and its sync settings will be deleted") {
			return errCancelled
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		return report(cmd, "Device group "+args[0]+" deleted", s.target(), s.app.Cluster().DeleteDeviceGroup(cmd.Context(), args[0]))
	},
}

var configSyncIPCmd = &cobra.Command{
	Use:   "config-sync-ip <address>",
	Short: "Set the config sync address of this appliance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		return report(cmd, "Config sync address set", s.target(), s.app.Cluster().ConfigSyncIP(cmd.Context(), args[0]))
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <group>",
	Short: "Run a config sync for a device group",
	Example: `  appliancectl cluster sync dg1
  appliancectl cluster sync dg1 --direction from-group --force-full-load-push`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		err = s.app.Cluster().Sync(cmd.Context(), syncDirection, args[0], syncForce)
		return report(cmd, "Sync "+syncDirection+" "+args[0], s.target(), err)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this appliance and a peer into a device group",
	Long: `Run the full clustering workflow against this appliance:

  1. wait until the appliance is ready
  2. set the config sync address (when --config-sync-ip is given)
  3. add the peer to the trust domain
  4. add this appliance to the device group
  5. sync the group from this appliance

Steps that find the appliance already in the desired state are skipped,
so join can be re-run safely.`,
	Example: `  appliancectl cluster join --group dg1 --peer 10.0.0.2 --config-sync-ip 10.1.0.1`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		runner := ui.NewStepRunner(ui.RunnerConfig{
			Title:   "Cluster Join",
			Command: cmd.CommandPath(),
			Params: []ui.Detail{
				{Key: "Appliance", Value: s.target()},
				{Key: "Peer", Value: peerHost},
				{Key: "Group", Value: joinGroup},
			},
			Output: cmd.OutOrStdout(),
		})
		peer := peerCredentials{Host: peerHost, Name: peerDeviceName(), User: peerUser, Password: s.peerSecret()}
		return runner.Run(cmd.Context(), joinTasks(s.app.Cluster(), s.app, joinGroup, joinConfigSyncIP, peer))
	},
}

// readiness is the part of the appliance the join workflow waits on.
type readiness interface {
	AwaitReady(ctx context.Context) error
}

type peerCredentials struct {
	Host     string
	Name     string
	User     string
	Password string
}

func joinTasks(c *cluster.Cluster, r readiness, group, syncIP string, peer peerCredentials) []ui.Task {
	var hostname string
	return []ui.Task{
		{Name: "Waiting for appliance", Run: func(ctx context.Context) (string, error) {
			if err := r.AwaitReady(ctx); err != nil {
				return "", err
			}
			h, err := c.Hostname(ctx)
			hostname = h
			return h, err
		}},
		{Name: "Setting config sync address", Run: func(ctx context.Context) (string, error) {
			if syncIP == "" {
				return "not requested", ui.ErrSkipped
			}
			return syncIP, c.ConfigSyncIP(ctx, syncIP)
		}},
		{Name: "Adding peer to trust", Run: func(ctx context.Context) (string, error) {
			added, err := c.EnsureInTrust(ctx, peer.Name, peer.Host, peer.User, peer.Password)
			if err != nil {
				return "", err
			}
			if !added {
				return "already trusted", ui.ErrSkipped
			}
			return peer.Name, nil
		}},
		{Name: "Joining device group", Run: func(ctx context.Context) (string, error) {
			added, err := c.EnsureInDeviceGroup(ctx, hostname, group)
			if err != nil {
				return "", err
			}
			if !added {
				return "already a member", ui.ErrSkipped
			}
			return group, nil
		}},
		{Name: "Syncing configuration", Run: func(ctx context.Context) (string, error) {
			return cluster.SyncToGroup, c.Sync(ctx, cluster.SyncToGroup, group, false)
		}},
	}
}

func peerDeviceName() string {
	if peerName != "" {
		return peerName
	}
	return peerHost
}

func (s *session) peerSecret() string {
	if peerPassword != "" {
		return peerPassword
	}
	return s.client.Password
}

var errCancelled = errors.New("operation cancelled")

// confirm asks before a destructive change unless --yes was given.
func confirm(cmd *cobra.Command, title, warning string) bool {
	if assumeYes {
		return true
	}
	if in, ok := cmd.InOrStdin().(*os.File); ok && !ui.IsTerminal(in) {
		fmt.Fprintln(cmd.ErrOrStderr(), "refusing destructive change without a terminal; pass --yes")
		return false
	}
	c := &ui.Confirmer{In: cmd.InOrStdin(), Out: cmd.OutOrStdout(), Width: ui.GetTerminalWidth()}
	return c.Confirm(title, []string{warning, "Use --yes to skip this prompt"})
}
