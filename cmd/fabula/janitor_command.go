package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fabula/internal/config"
	"fabula/internal/janitor"
	"fabula/internal/logging"
	"fabula/internal/recording"
)

func newJanitorCommand(ctx *commandContext) *cobra.Command {
	janitorCmd := &cobra.Command{
		Use:   "janitor",
		Short: "Background reclamation of abandoned recordings",
	}

	janitorCmd.AddCommand(newJanitorRunCommand(ctx))
	janitorCmd.AddCommand(newJanitorSweepCommand(ctx))

	return janitorCmd
}

func newJanitorRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the stale-recording sweeper until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *recording.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("initialize logging: %w", err)
				}

				j, err := janitor.New(cfg, store, logger)
				if err != nil {
					return err
				}
				if err := j.Start(cmd.Context()); err != nil {
					return err
				}
				defer j.Stop()

				fmt.Fprintln(cmd.OutOrStdout(), "Janitor running; press Ctrl-C to stop")

				signals := make(chan os.Signal, 1)
				signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(signals)

				select {
				case <-cmd.Context().Done():
				case <-signals:
				}
				return nil
			})
		},
	}
}

func newJanitorSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single reclamation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *recording.Store) error {
				j, err := janitor.New(cfg, store, nil)
				if err != nil {
					return err
				}
				count, err := j.SweepOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d stale recording(s)\n", count)
				return nil
			})
		},
	}
}
