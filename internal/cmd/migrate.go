package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	pgxadapter "github.com/lborres/portal/adapters/pgx"
)

var errNoDatabase = errors.New("no database configured: set PORTAL_DATABASE_URL or PORTAL_DB_HOST")

func newMigrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded schema migrations, including the default
permission catalogue and role grants.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !rt.cfg.HasDatabase() {
				return errNoDatabase
			}
			return pgxadapter.Migrate(rt.cfg.DatabaseDSN(), rt.logger)
		},
	}
}
