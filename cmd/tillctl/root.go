package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gosuda/tillpoint/internal/app"
	"github.com/gosuda/tillpoint/internal/config"
	"github.com/gosuda/tillpoint/internal/tenant"
)

// env is what commands need from the outside world. Tests replace it.
type env struct {
	loadConfig func() (*config.Config, error)
	openApp    func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

func defaultEnv() *env {
	return &env{
		loadConfig: config.Load,
		openApp: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg, nil)
		},
	}
}

// provisionFunc provisions one owner.
type provisionFunc func(ctx context.Context, req tenant.Request) (tenant.Outcome, error)

// withApp loads configuration, connects and runs fn.
func (e *env) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	a, err := e.openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newRootCmd(e *env) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "tillctl",
		Short: "Tillpoint operator CLI: migrate, provision tenants, inspect plans",
		Long: `tillctl operates a Tillpoint deployment. It reads the same TILLPOINT_*
environment (and optional .env file) as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level, err := zerolog.ParseLevel(os.Getenv("TILLPOINT_LOG_LEVEL"))
			if err != nil || level == zerolog.NoLevel {
				level = zerolog.InfoLevel
			}
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newMigrateCmd(e))
	root.AddCommand(newProvisionCmd(e))
	root.AddCommand(newPlansCmd())
	return root
}
