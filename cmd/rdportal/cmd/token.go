package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/netcore-rdp/rdportal/internal/domain/gateway"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Encode or inspect gateway login tokens",
	Long: `Encode or inspect the encrypted login tokens handed to the gateway.

The secret key defaults to gateway.secret_key from the config file or
RDPORTAL_GATEWAY_SECRET_KEY.

Examples:
  rdportal token encode --ip 10.0.0.5 --username alice --password s3cret
  rdportal token inspect "$TOKEN"`,
}

var tokenEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a login token for one target",
	Args:  cobra.NoArgs,
	RunE:  runTokenEncode,
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect <token>",
	Short: "Decrypt and verify a token, printing its JSON payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenInspect,
}

var (
	tokenKey      string
	tokenIP       string
	tokenUsername string
	tokenPassword string
	tokenName     string
	tokenUser     string
	tokenTTL      time.Duration
)

func init() {
	tokenCmd.PersistentFlags().StringVar(&tokenKey, "key", "", "gateway secret key (default: gateway.secret_key)")

	tokenEncodeCmd.Flags().StringVar(&tokenIP, "ip", "", "target address (required)")
	tokenEncodeCmd.Flags().StringVar(&tokenUsername, "username", "", "remote login name")
	tokenEncodeCmd.Flags().StringVar(&tokenPassword, "password", "", "remote login password")
	tokenEncodeCmd.Flags().StringVar(&tokenName, "name", "", "connection name (default: RDP <ip>)")
	tokenEncodeCmd.Flags().StringVar(&tokenUser, "gateway-user", "guest", "gateway-side username")
	tokenEncodeCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenEncodeCmd.MarkFlagRequired("ip")

	tokenCmd.AddCommand(tokenEncodeCmd, tokenInspectCmd)
	rootCmd.AddCommand(tokenCmd)
}

// resolveTokenKey prefers the --key flag over the configured secret.
func resolveTokenKey() (string, error) {
	key := tokenKey
	if key == "" {
		key = viper.GetString("gateway.secret_key")
	}
	if key == "" {
		return "", fmt.Errorf("no gateway secret key: pass --key or set gateway.secret_key")
	}
	if _, err := gateway.ParseKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func runTokenEncode(cmd *cobra.Command, args []string) error {
	key, err := resolveTokenKey()
	if err != nil {
		return err
	}

	payload := gateway.NewRDPPayload(
		tokenUser,
		gateway.ConnectionName(tokenName, tokenIP),
		gateway.RDPTarget{
			Hostname: tokenIP,
			Username: tokenUsername,
			Password: tokenPassword,
		},
		time.Now().Add(tokenTTL),
	)

	token, err := gateway.NewCodec(key).Encode(payload)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runTokenInspect(cmd *cobra.Command, args []string) error {
	key, err := resolveTokenKey()
	if err != nil {
		return err
	}

	raw, err := gateway.Decode(args[0], key)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("token payload is not JSON: %w", err)
	}
	out.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(out.Bytes())
	return err
}
