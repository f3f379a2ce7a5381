// Package cmd provides the CLI commands for rdportal.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netcore-rdp/rdportal/internal/config"
)

var cfgFile string
var envFile string

var rootCmd = &cobra.Command{
	Use:   "rdportal",
	Short: "rdportal - remote desktop portal backend",
	Long: `rdportal hands out remote-desktop sessions to browser and native clients.

Each connect produces a .rdp descriptor, an rdp:// URI and, when the
gateway is enabled, a pre-authenticated Guacamole URL carrying an
encrypted login token.

Quick start:
  1. Create a config file: rdportal config init
  2. Run: rdportal start

Configuration:
  Config is loaded from rdportal.yaml in the current directory,
  $HOME/.rdportal/, or /etc/rdportal/. A .env file in the working
  directory is loaded first.

  Environment variables can override config values with the RDPORTAL_ prefix.
  Example: RDPORTAL_SERVER_HTTP_ADDR=0.0.0.0:3001

Commands:
  start       Start the API server
  stop        Stop the running server
  probe       Check whether a host accepts remote-desktop connections
  token       Encode or inspect gateway login tokens
  gen-key     Generate a gateway secret key
  hash-key    Hash an API key for the config file
  config      Write a starter config file
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rdportal.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: ./.env if present)")
}

func initConfig() {
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	config.InitViper(cfgFile)
}
