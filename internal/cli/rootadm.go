package cli

import (
	"github.com/spf13/cobra"
)

var rootAdmCmd = &cobra.Command{
	Use:   "cattreeadm",
	Short: "Administrative CLI for cattree: schema, types, integrity and merges",
	Long: `cattreeadm is the administrative companion to cattree. It handles the
database lifecycle, the type registry, tree validation, duplicate detection
and merges. Merges rewrite references in dependent collections.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin() error {
	return rootAdmCmd.Execute()
}

func init() {
	addGlobalFlags(rootAdmCmd)
}
