package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fabula/internal/engine"
)

func newPlaybackCommand(ctx *commandContext) *cobra.Command {
	playbackCmd := &cobra.Command{
		Use:   "playback",
		Short: "Inspect playback sessions",
	}

	playbackCmd.AddCommand(newPlaybackListCommand(ctx))

	return playbackCmd
}

func newPlaybackListCommand(ctx *commandContext) *cobra.Command {
	var recordingID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List playback sessions against a recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				sessions, err := eng.Playback().ListByRecording(cmd.Context(), recordingID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, sessions)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No playback sessions found")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, session := range sessions {
					rows = append(rows, []string{
						session.ID,
						session.UserID,
						fmt.Sprintf("%d", session.SegmentIndex),
						formatSeconds(session.PositionSeconds),
						yesNo(session.Completed()),
					})
				}
				table := renderTable(
					[]string{"ID", "User", "Segment", "Position", "Completed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&recordingID, "recording", "r", "", "Recording identifier")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	_ = cmd.MarkFlagRequired("recording")
	return cmd
}
