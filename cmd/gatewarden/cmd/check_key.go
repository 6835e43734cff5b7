package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	gwhttp "github.com/gatewarden/gatewarden/internal/adapter/inbound/http"
)

var checkKeyCmd = &cobra.Command{
	Use:   "check-key [api-key]",
	Short: "Generate the SHA256 hash for an API key",
	Long: `Generate the SHA256 hash of an API key for use in config.

The output format is "sha256:<hex>" which can be directly used
in the auth.api_keys.key_hash field.

Example:
  gatewarden check-key "my-secret-api-key"
  # Output: sha256:7d5e8c...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  gatewarden check-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sha256:%s\n", gwhttp.HashAPIKey(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(checkKeyCmd)
}
