package command

// root.go defines the root command for wsprobe and the setup shared by every
// subcommand: configuration from .env/environment, flag overrides, logger.

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wsprobe/internal/config"
	"wsprobe/internal/logger"
)

var (
	cfg  *config.Config // loaded in PersistentPreRunE
	zlog = zap.NewNop()

	logLevel string // global flag for the log level
)

// rootCmd represents the base command; without a subcommand it runs the probe
var rootCmd = &cobra.Command{
	Use:   "wsprobe",
	Short: "wsprobe - WebSocket request/response probe",
	Long: `wsprobe opens one WebSocket connection, sends two scripted request frames
and prints every frame the server sends back until the server closes the
connection or the process is interrupted.

A frame is a headers JSON object, a blank line, then a payload JSON object.

Use "wsprobe serve" to start a local sandbox server to probe against.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runProbe,
}

// Execute runs the root command with ctx, cancelled on interrupt by main.
// Report lines go to stdout, cobra's own messages to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(ctx)
	_ = zlog.Sync()
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (env LOG_LEVEL)")
	addProbeFlags(rootCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	applyFlags(cmd, c)
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logger.New(c.LogLevel)
	if err != nil {
		return err
	}
	cfg, zlog = c, l
	return nil
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Lookup("url") != nil && flags.Changed("url") {
		c.ProbeURL, _ = flags.GetString("url")
	}
	if flags.Lookup("token") != nil && flags.Changed("token") {
		c.ProbeToken, _ = flags.GetString("token")
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		c.SandboxAddr, _ = flags.GetString("addr")
	}
	if flags.Lookup("echo") != nil && flags.Changed("echo") {
		c.SandboxEcho, _ = flags.GetBool("echo")
	}
	if flags.Lookup("jwt-secret") != nil && flags.Changed("jwt-secret") {
		c.SandboxJWTSecret, _ = flags.GetString("jwt-secret")
	}
}
