package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netcore-rdp/rdportal/internal/domain/gateway"
)

var genKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a gateway secret key",
	Long: `Generate a random 128-bit gateway secret, hex-encoded.

Put the same value in rdportal's gateway.secret_key and in the gateway's
json-secret-key setting.

Example:
  rdportal gen-key
  # Output: 9f1c0e...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := gateway.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genKeyCmd)
}
