package command

import (
	"github.com/spf13/cobra"

	"wsprobe/internal/sandbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local sandbox server the probe talks to",
	Long: `Serves do_something and do_something_twice over WebSocket on --addr.
With --echo every text frame is written back verbatim instead.
With --jwt-secret the upgrade requires "Authorization: Bearer <token>",
see "wsprobe token".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := sandbox.NewServer(sandbox.Options{
			Echo:      cfg.SandboxEcho,
			JWTSecret: cfg.SandboxJWTSecret,
			RateLimit: cfg.SandboxRateLimit,
			RateBurst: cfg.SandboxRateBurst,
		}, sandbox.NewGreeterRegistry(), zlog)

		return srv.ListenAndServe(cmd.Context(), cfg.SandboxAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:5000", "listen address (env SANDBOX_ADDR)")
	serveCmd.Flags().Bool("echo", false, "echo frames back instead of dispatching (env SANDBOX_ECHO)")
	serveCmd.Flags().String("jwt-secret", "", "require HS256 bearer tokens signed with this secret (env SANDBOX_JWT_SECRET)")
}
