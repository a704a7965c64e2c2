package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fabula/internal/engine"
	"fabula/internal/recording"
)

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	recordingsCmd := &cobra.Command{
		Use:   "recordings",
		Short: "Inspect and manage narration recordings",
	}

	recordingsCmd.AddCommand(newRecordingsListCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsShowCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsValidateCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsDeleteCommand(ctx))
	recordingsCmd.AddCommand(newRecordingsRecoverCommand(ctx))

	return recordingsCmd
}

func newRecordingsListCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings in a story session",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				recs, err := eng.ListRecordings(cmd.Context(), sessionID, statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, recs)
				}
				if len(recs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recordings found")
					return nil
				}
				rows := make([][]string, 0, len(recs))
				for _, rec := range recs {
					rows = append(rows, []string{
						rec.ID,
						rec.PathKey,
						string(rec.Status),
						fmt.Sprintf("%d", rec.SegmentCount()),
						formatSeconds(rec.TotalDuration),
						fmt.Sprintf("%d", rec.PlayCount),
					})
				}
				table := renderTable(
					[]string{"ID", "Path", "Status", "Segments", "Duration", "Plays"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Story session identifier")
	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (recording, complete, interrupted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newRecordingsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <recording-id>",
		Short: "Show one recording with its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				rec, segments, err := eng.GetRecording(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Recording *recording.Recording `json:"recording"`
						Segments  []recording.Segment  `json:"segments"`
					}{rec, segments})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recording %s\n", rec.ID)
				fmt.Fprintf(out, "  Session:  %s\n", rec.SessionID)
				fmt.Fprintf(out, "  Path:     %s\n", rec.PathKey)
				fmt.Fprintf(out, "  Status:   %s\n", rec.Status)
				fmt.Fprintf(out, "  Duration: %s\n", formatSeconds(rec.TotalDuration))
				fmt.Fprintf(out, "  Plays:    %d\n", rec.PlayCount)
				if rec.Status == recording.StatusInterrupted {
					fmt.Fprintf(out, "  Interrupted: %s\n", rec.InterruptionReason)
				}
				if len(segments) == 0 {
					fmt.Fprintln(out, "No segments")
					return nil
				}
				rows := make([][]string, 0, len(segments))
				for _, seg := range segments {
					rows = append(rows, []string{
						fmt.Sprintf("%d", seg.Index),
						seg.ChoiceID,
						formatSeconds(seg.Duration),
						seg.AudioRef,
					})
				}
				table := renderTable(
					[]string{"#", "Choice", "Duration", "Audio"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newRecordingsValidateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <recording-id>",
		Short: "Run integrity checks against a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				report, err := eng.ValidateRecording(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				if report.Valid {
					fmt.Fprintln(out, "Recording is valid")
					return nil
				}
				fmt.Fprintf(out, "Recording has %d issue(s):\n", len(report.Issues))
				for _, issue := range report.Issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newRecordingsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <recording-id>",
		Short: "Delete a recording and everything hanging off it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				if err := eng.DeleteRecording(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted recording %s\n", args[0])
				return nil
			})
		},
	}
}

func newRecordingsRecoverCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Inspect the most recent interrupted recording in a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				info, err := eng.RecoverInterrupted(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, info)
				}
				out := cmd.OutOrStdout()
				if info == nil {
					fmt.Fprintln(out, "Nothing to recover")
					return nil
				}
				rec := info.Recording
				fmt.Fprintf(out, "Interrupted recording %s\n", rec.ID)
				fmt.Fprintf(out, "  Path:       %s\n", rec.PathKey)
				fmt.Fprintf(out, "  Reason:     %s\n", rec.InterruptionReason)
				fmt.Fprintf(out, "  Resumable:  %s\n", yesNo(info.Resumable()))
				fmt.Fprintf(out, "  Valid segments: %d (last index %d)\n", len(info.ValidSegments), info.LastValidSegment)
				if len(info.Issues) > 0 {
					fmt.Fprintln(out, "  Findings:")
					for _, issue := range info.Issues {
						fmt.Fprintf(out, "    - %s\n", issue)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Story session identifier")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func parseStatuses(raw []string) ([]recording.Status, error) {
	statuses := make([]recording.Status, 0, len(raw))
	for _, value := range raw {
		status, ok := recording.ParseStatus(strings.TrimSpace(value))
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	return fmt.Sprintf("%.1fs", seconds)
}
