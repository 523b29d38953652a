package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wsprobe/internal/sandbox"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a sandbox started with --jwt-secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.SandboxJWTSecret == "" {
			return fmt.Errorf("--jwt-secret or SANDBOX_JWT_SECRET is required")
		}
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := sandbox.IssueToken(cfg.SandboxJWTSecret, subject, ttl)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("jwt-secret", "", "signing secret (env SANDBOX_JWT_SECRET)")
	tokenCmd.Flags().StringP("subject", "s", "probe", "token subject")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}
