// Package cmd provides the CLI commands for SnipVault.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snipvault/snipvault/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "snipvault",
	Short: "SnipVault - code snippet platform with tiered admission control",
	Long: `SnipVault is a code snippet sharing and execution platform.

Every API route is guarded by a tiered request admission subsystem:
fixed-window rate limits per endpoint, progressive penalties for repeat
offenders, guest/authenticated quota splits, and brute-force protection
on login attempts.

Quick start:
  1. Create a config file: snipvault.yaml
  2. Run: snipvault start

Configuration:
  Config is loaded from snipvault.yaml in the current directory,
  $HOME/.snipvault/, or /etc/snipvault/.

  Environment variables can override config values with the SNIPVAULT_ prefix.
  Example: SNIPVAULT_SERVER_HTTP_ADDR=:9090

Commands:
  start          Start the API server
  config         Print the effective configuration
  hash-password  Generate an argon2id hash for a user password
  version        Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./snipvault.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
