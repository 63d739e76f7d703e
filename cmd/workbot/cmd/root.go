// Package cmd provides the CLI commands for workbot.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nirmalnpatel111/new-discord-bot/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "workbot",
	Short: "workbot - work session tracker with a calendar mirror",
	Long: `workbot tracks work sessions started and stopped from chat and mirrors
each session as a calendar event whose end time rolls forward while the
session stays open.

Quick start:
  1. Create a config file: workbot.yaml
  2. Run: workbot serve

Configuration:
  Config is loaded from workbot.yaml in the current directory,
  $HOME/.workbot/, or /etc/workbot/.

  Environment variables can override config values with the WORKBOT_ prefix.
  Example: WORKBOT_SERVER_HTTP_ADDR=:9090

Commands:
  serve         Start the webhook server and reconciler
  stop          Stop the running server
  hash-token    Generate a hash for a webhook bearer token
  check-config  Validate the config file and print the effective settings
  version       Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./workbot.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
