// Package cmd implements the portald command line.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lborres/portal/internal/config"
)

// runtime is filled by the root command before any subcommand runs.
type runtime struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

// NewRootCmd builds the portald command tree.
func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:   "portald",
		Short: "Client portal authentication and access service",
		Long: `portald serves the portal's session, profile and permission API.

Configuration is read from PORTAL_* environment variables, optionally
preloaded from a .env file. Without PORTAL_AUTH_URL the service runs in
demo mode on in-memory adapters.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(rt.envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = config.SetupLogger(cfg, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "dotenv file to preload (missing file is ignored)")

	root.AddCommand(
		newServeCmd(rt),
		newMigrateCmd(rt),
		newCheckCmd(rt),
	)
	return root
}
