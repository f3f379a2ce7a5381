package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netcore-rdp/rdportal/internal/domain/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Hash an API key for the config file",
	Long: `Hash an API key for use in auth.api_keys[].key_hash.

The default output is an Argon2id PHC string. Pass --sha256 for the
faster "sha256:<hex>" form.

Example:
  rdportal hash-key "my-secret-api-key"
  # Output: $argon2id$v=19$m=47104,t=1,p=1$...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  rdportal hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := hashAPIKey(args[0], hashKeySHA256)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var hashKeySHA256 bool

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "emit sha256:<hex> instead of Argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}

func hashAPIKey(raw string, sha bool) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("api key must not be empty")
	}
	if sha {
		return "sha256:" + auth.HashKey(raw), nil
	}
	return auth.HashKeyArgon2id(raw)
}
