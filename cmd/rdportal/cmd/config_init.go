package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netcore-rdp/rdportal/internal/config"
	"github.com/netcore-rdp/rdportal/internal/domain/gateway"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the rdportal config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with a fresh gateway key",
	Long: `Write a starter rdportal.yaml with every default filled in and a newly
generated gateway secret key. The file is created with 0600 permissions.

Examples:
  rdportal config init
  rdportal config init --path /etc/rdportal/rdportal.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var (
	configInitPath  string
	configInitForce bool
)

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", "rdportal.yaml", "where to write the config file")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	key, err := gateway.GenerateKey()
	if err != nil {
		return err
	}

	if err := config.WriteFile(configInitPath, config.Starter(key), configInitForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configInitPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Set the same gateway.secret_key in the gateway's json-secret-key setting.")
	return nil
}
