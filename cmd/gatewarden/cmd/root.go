// Package cmd provides the CLI commands for gatewarden.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatewarden",
	Short: "Gatewarden - request admission gateway",
	Long: `Gatewarden admits or rejects requests before they reach business logic.

Each request passes three stages in order: windowed rate limiting, tenant
context resolution, and plan quota enforcement. The limiter fails open when
its counter store is down; context resolution fails closed.

Quick start:
  1. Create a config file: gatewarden.yaml
  2. Create a tenant catalog: catalog.yaml
  3. Run: gatewarden serve

Configuration:
  Config is loaded from gatewarden.yaml in the current directory,
  $HOME/.gatewarden/, or /etc/gatewarden/.

  Environment variables can override config values with the GATEWARDEN_ prefix.
  Example: GATEWARDEN_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the admission gateway
  check-key   Generate the SHA256 hash for an API key
  version     Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gatewarden.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
