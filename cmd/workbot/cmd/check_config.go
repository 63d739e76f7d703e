package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nirmalnpatel111/new-discord-bot/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and print the effective settings",
	Long: `Load the configuration, apply defaults and environment overrides,
validate it, and print the effective settings as YAML.

Secrets (token hashes, calendar bearer token) are redacted in the output.

Examples:
  workbot check-config
  workbot --config /path/to/workbot.yaml check-config`,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if file := config.ConfigFileUsed(); file != "" {
		fmt.Fprintf(os.Stderr, "Config file: %s\n", file)
	} else {
		fmt.Fprintln(os.Stderr, "Config file: none (defaults and environment only)")
	}

	redacted := *cfg
	if len(redacted.Auth.TokenHashes) > 0 {
		redacted.Auth.TokenHashes = make([]string, len(cfg.Auth.TokenHashes))
		for i := range cfg.Auth.TokenHashes {
			redacted.Auth.TokenHashes[i] = "<redacted>"
		}
	}
	if redacted.Calendar.BearerToken != "" {
		redacted.Calendar.BearerToken = "<redacted>"
	}

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Print(string(out))

	fmt.Fprintln(os.Stderr, "Config is valid.")
	return nil
}
