package main

import (
	"github.com/spf13/cobra"

	"github.com/muurk/appliancectl/internal/keys"
	"github.com/muurk/appliancectl/internal/logging"
	"github.com/muurk/appliancectl/internal/ui"
)

var (
	keyFolder    string
	keyName      string
	keyPublicDir string
	keyPublicOut string
	keyFormat    string
	keyBits      int
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysInstallCmd, keysPathCmd)

	keysCmd.PersistentFlags().StringVar(&keyFolder, "folder", "Common", "Appliance folder holding the key")
	keysCmd.PersistentFlags().StringVar(&keyName, "name", "", "Key name, without the .key suffix")
	_ = keysCmd.MarkPersistentFlagRequired("name")

	keysInstallCmd.Flags().StringVar(&keyPublicDir, "public-key-dir", ".", "Directory for the public key")
	keysInstallCmd.Flags().StringVar(&keyPublicOut, "public-key-file", "", "Public key file name (default <name>.pub)")
	keysInstallCmd.Flags().StringVar(&keyFormat, "format", string(keys.FormatPEM), "Public key format: pem or ssh")
	keysInstallCmd.Flags().IntVar(&keyBits, "bits", keys.DefaultKeyBits, "RSA key size")
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage key pairs on the appliance itself",
	Long: `Generate and install key pairs using the local appliance shell.

These commands run tmsh directly and must be run on the appliance.`,
}

var keysInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Generate a key pair and install the private key",
	Example: `  appliancectl keys install --name automation --public-key-dir /shared/keys --format ssh`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newKeyManager()
		m.Format = keys.PublicKeyFormat(keyFormat)
		m.Bits = keyBits

		out := keyPublicOut
		if out == "" {
			out = keyName + ".pub"
		}
		err := m.GenerateAndInstallKeyPair(cmd.Context(), keyPublicDir, out, keyFolder, keyName)

		p := ui.NewPrinter(cmd.OutOrStdout())
		if err != nil {
			p.PrintError("Key install failed", err, nil)
			return err
		}
		p.PrintSuccess("Key "+keyName+" installed", []ui.Detail{
			{Key: "Folder", Value: keyFolder},
			{Key: "Public key", Value: out},
		})
		return nil
	},
}

var keysPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the filestore path and passphrase state of an installed key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newKeyManager()
		path, err := m.PrivateKeyFilePath(cmd.Context(), keyFolder, keyName)
		if err != nil {
			return err
		}
		meta, err := m.PrivateKeyMetadata(cmd.Context(), keyFolder, keyName)
		if err != nil {
			return err
		}
		protected := "no"
		if meta.Passphrase != "" {
			protected = "yes"
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Key "+keyName, []ui.Detail{
			{Key: "Path", Value: path},
			{Key: "Passphrase", Value: protected},
		})
		return nil
	},
}

func newKeyManager() *keys.Manager {
	m := keys.NewManager(keys.ExecShell{})
	m.SetLogger(logging.Named("keys"))
	return m
}
