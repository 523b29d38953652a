package command

import (
	"github.com/spf13/cobra"

	"wsprobe/internal/probe"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send the two scripted requests and print every reply",
	Long: `Connects to --url (default ws://127.0.0.1:5000), sends do_something (id 0)
and do_something_twice (id 1), then prints the headers and payload line of
every inbound frame until the server closes the connection or Ctrl+C.`,
	RunE: runProbe,
}

func init() {
	addProbeFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addProbeFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", probe.DefaultURL, "WebSocket URL to probe (env PROBE_URL)")
	cmd.Flags().StringP("token", "t", "", "bearer token sent on the handshake (env PROBE_TOKEN)")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	client := probe.NewClient(
		probe.NewDialer(cfg.ProbeHandshakeTimeout),
		cfg.ProbeURL,
		probe.WithToken(cfg.ProbeToken),
		probe.WithOutput(cmd.OutOrStdout()),
		probe.WithLogger(zlog),
	)
	return client.Run(cmd.Context(), probe.DefaultRequests())
}
