package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfg "photomatch/src/configuration"
	"photomatch/src/logging"
	"photomatch/src/reconcile"
	"photomatch/src/repository"
	"photomatch/src/server"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type cli struct {
	config *cfg.Properties
	log    zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "photomatch",
		Short:         "Event photo publishing and selfie matching service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			config, err := cfg.Parse()
			if err != nil {
				return err
			}
			c.config = config
			c.log = logging.New(config.LogLevel, nil)
			return nil
		},
	}
	root.AddCommand(c.serveCommand(), c.migrateOwnersCommand(), c.reconcileCommand())
	return root
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := build(ctx, c.config, c.log, true)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if c.config.Reconcile.Enabled {
				sched := reconcile.NewScheduler(logging.Component(c.log, "scheduler"))
				if _, err := sched.Schedule(ctx, c.config.Reconcile.Schedule, app.reconciler); err != nil {
					return err
				}
				sched.Start()
				defer sched.Shutdown()
				c.log.Info().Str("schedule", c.config.Reconcile.Schedule).Msg("reconcile scheduled")
			}
			return server.RunServer(ctx, c.config, app.deps, c.log)
		},
	}
}

func (c *cli) migrateOwnersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-owners",
		Short: "Copy legacy owner fields into ownerId",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, c.config, c.log)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())
			migrated, skipped, err := repository.MigrateOwners(ctx, store, logging.Component(c.log, "migrate"))
			if err != nil {
				return err
			}
			cmd.Printf("migrated %d events, skipped %d\n", migrated, skipped)
			return nil
		},
	}
}

func (c *cli) reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute event counters from the bucket once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := build(ctx, c.config, c.log, false)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			report, err := app.reconciler.RunOnce(ctx)
			cmd.Printf("checked %d events, corrected %d, failed %d\n", report.Checked, len(report.Corrected), len(report.Failed))
			return err
		},
	}
}
