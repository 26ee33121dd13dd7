package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/muurk/appliancectl/internal/config"
	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/ui"
)

var profileMakeDefault bool

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileAddCmd, profileListCmd, profileRemoveCmd)

	profileAddCmd.Flags().BoolVar(&profileMakeDefault, "default", false, "Make this the default profile")
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved appliance profiles",
	Long: `Profiles store the address, port, username and TLS setting of an
appliance in ` + "$XDG_CONFIG_HOME/appliancectl/config.yaml" + `. Passwords are never stored.`,
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace a profile from --host, --port, --user and --insecure",
	Example: `  appliancectl profile add lab --host 10.0.0.1 --user admin --insecure --default`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flags.host == "" {
			return errors.New("--host is required")
		}
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		reg.SetProfile(args[0], &config.Profile{
			Host:     flags.host,
			Port:     flags.port,
			Username: flags.user,
			Insecure: flags.insecure,
		})
		if profileMakeDefault {
			reg.DefaultProfile = args[0]
		}
		if err := reg.Save(); err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Profile "+args[0]+" saved", []ui.Detail{
			{Key: "Host", Value: flags.host},
			{Key: "Default", Value: strconv.FormatBool(reg.DefaultProfile == args[0])},
		})
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if len(reg.Profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles. Add one with 'appliancectl profile add'.")
			return nil
		}

		out := profileTable(reg)
		if f, ok := cmd.OutOrStdout().(*os.File); ok && ui.IsTerminal(f) {
			return ui.RenderOnce(f, out+"\n")
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if !reg.RemoveProfile(args[0]) {
			return fmt.Errorf("profile %q not found", args[0])
		}
		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile %s removed\n", args[0])
		return nil
	},
}

func profileTable(reg *config.Registry) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ui.PrimaryColor)).
		Headers("", "NAME", "HOST", "PORT", "USER", "LAST USED")

	for _, name := range reg.ProfileNames() {
		p := reg.Profiles[name]
		marker := ""
		if name == reg.DefaultProfile {
			marker = ui.MarkerComplete
		}
		port := strconv.Itoa(restapi.DefaultPort)
		if p.Port != 0 {
			port = strconv.Itoa(p.Port)
		}
		user := p.Username
		if user == "" {
			user = restapi.DefaultUsername
		}
		lastUsed := "never"
		if !p.LastUsed.IsZero() {
			lastUsed = p.LastUsed.Format("2006-01-02 15:04")
		}
		t.Row(marker, name, p.Host, port, user, lastUsed)
	}
	return t.Render()
}
