package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON emits v as indented JSON on the command's stdout. Audio refs and
// path keys can carry characters the default encoder would escape for HTML,
// so escaping is turned off to keep --json output copy-pasteable.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
