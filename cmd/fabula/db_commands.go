package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fabula/internal/config"
	"fabula/internal/recording"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}

	dbCmd.AddCommand(newDBHealthCommand(ctx))

	return dbCmd
}

func newDBHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report engine database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *recording.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if asJSON {
					if jsonErr := writeJSON(cmd, health); jsonErr != nil {
						return jsonErr
					}
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database:   %s\n", health.DBPath)
				fmt.Fprintf(out, "Readable:   %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Integrity:  %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Recordings: %d\n", health.TotalRecordings)
				if len(health.MissingTables) > 0 {
					fmt.Fprintf(out, "Missing tables: %s\n", strings.Join(health.MissingTables, ", "))
				}
				if health.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", health.Error)
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
