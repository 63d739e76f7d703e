package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/auth"
)

var hashSHA256 bool

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Generate a hash for a webhook bearer token",
	Long: `Generate a hash of a webhook token for use in config.

By default the output is an Argon2id hash in PHC format. Use --sha256 for
a cheaper "sha256:<hex>" hash. Either format goes directly into the
auth.token_hashes list.

Example:
  workbot hash-token "my-secret-token"
  workbot hash-token --sha256 "my-secret-token"

Security note: The token will appear in shell history.
Consider clearing history after use or using an environment variable:
  workbot hash-token "$MY_TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		if hashSHA256 {
			fmt.Println(auth.HashToken(token))
			return nil
		}
		hash, err := auth.HashTokenArgon2id(token)
		if err != nil {
			return fmt.Errorf("failed to hash token: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	hashTokenCmd.Flags().BoolVar(&hashSHA256, "sha256", false, "Emit a SHA-256 hash instead of Argon2id")
	rootCmd.AddCommand(hashTokenCmd)
}
