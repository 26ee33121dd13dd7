package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/appliancectl/internal/appliance"
	"github.com/muurk/appliancectl/internal/transaction"
)

var (
	configFile   string
	loadOptions  []string
	commandsFile string
)

func init() {
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(transactionCmd)
	transactionCmd.AddCommand(transactionApplyCmd)

	loadCmd.Flags().StringVar(&configFile, "file", "", "Saved configuration file to load (default configuration when empty)")
	loadCmd.Flags().StringArrayVar(&loadOptions, "option", nil, "Load option as name or name=value (repeatable)")
	saveCmd.Flags().StringVar(&configFile, "file", "", "File to save the running configuration to")
	transactionApplyCmd.Flags().StringVarP(&commandsFile, "file", "f", "", "YAML command file, or - for stdin")
	_ = transactionApplyCmd.MarkFlagRequired("file")
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a saved system configuration",
	Example: `  appliancectl load
  appliancectl load --file /var/local/scf/base.scf --option merge`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := parseLoadOptions(loadOptions)
		if err != nil {
			return err
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		return report(cmd, "Configuration loaded", s.target(), s.app.Load(cmd.Context(), configFile, opts))
	},
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the running system configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		return report(cmd, "Configuration saved", s.target(), s.app.Save(cmd.Context(), configFile))
	},
}

var transactionCmd = &cobra.Command{
	Use:   "transaction",
	Short: "Apply changes atomically",
}

var transactionApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a command file in a single transaction",
	Long: `Open a transaction, stage every command from the file in order, and
commit. Either every command takes effect or none does.

The file lists commands under a top-level "commands" key:

  commands:
    - method: create
      path: /tm/ltm/pool
      body: {name: web}
    - method: modify
      path: /tm/ltm/virtual/~Common~vs1
      body: {pool: web}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmds, err := readCommands(cmd, commandsFile)
		if err != nil {
			return err
		}
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		title := fmt.Sprintf("Transaction of %d command(s) completed", len(cmds))
		return report(cmd, title, s.target(), s.app.Transaction(cmd.Context(), cmds))
	},
}

func readCommands(cmd *cobra.Command, path string) ([]transaction.Command, error) {
	if path == "-" {
		return transaction.LoadCommands(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open command file: %w", err)
	}
	defer f.Close()
	return transaction.LoadCommands(f)
}

// parseLoadOptions turns "name=value" into {name: value} and a bare "name"
// into {name: ""}.
func parseLoadOptions(raw []string) ([]appliance.LoadOption, error) {
	opts := make([]appliance.LoadOption, 0, len(raw))
	for _, r := range raw {
		name, value, _ := strings.Cut(r, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid load option %q", r)
		}
		opts = append(opts, appliance.LoadOption{Name: name, Value: value})
	}
	return opts, nil
}
