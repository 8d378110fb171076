package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gosuda/tillpoint/internal/app"
)

func newMigrateCmd(e *env) *cobra.Command {
	var lockdown bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the control-plane schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Control.Migrate(cmd.Context()); err != nil {
					return err
				}
				if lockdown {
					if err := a.Control.LockDown(cmd.Context()); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "control plane schema is up to date")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&lockdown, "lockdown", false, "revoke CONNECT on the control-plane database from PUBLIC")
	return cmd
}
