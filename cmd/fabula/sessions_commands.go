package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fabula/internal/engine"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Story session utilities",
	}

	sessionsCmd.AddCommand(newSessionsStatsCommand(ctx))

	return sessionsCmd
}

func newSessionsStatsCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a session's recordings by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				stats, err := eng.SessionStats(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{"recording", fmt.Sprintf("%d", stats.Recordings)},
					{"complete", fmt.Sprintf("%d", stats.Complete)},
					{"interrupted", fmt.Sprintf("%d", stats.Interrupted)},
					{"total", fmt.Sprintf("%d", stats.Total)},
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Story session identifier")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
