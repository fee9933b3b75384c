package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lborres/portal"
)

var errSetupIncomplete = errors.New("setup incomplete")

func newCheckCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the backing store and seed default firm settings",
		Long: `Check connectivity, insert default firm settings when missing and
count the permission catalogue. The report is printed as JSON; the
command fails when the store is unreachable or has no permissions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			b, err := buildBackend(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer b.Close()

			p, err := portal.New(b.portalConfig(rt.cfg, nil, rt.logger))
			if err != nil {
				return fmt.Errorf("failed to create portal: %w", err)
			}
			defer p.Close()

			report, err := p.ValidateSetup(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			if !report.OK() {
				return errSetupIncomplete
			}
			return nil
		},
	}
}
