package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cattree",
	Short: "Browse and edit category trees",
	Long: `cattree manages hierarchical category trees (up to three levels deep)
kept in a SQLite database. Each category type owns an independent tree.

Nodes are addressed by id or by a name path within a type, for example
receitas:Guarnição/Arroz. Path segments ignore case and accents and also
match a node's code.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	addGlobalFlags(rootCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("db", "", "Path to database file (overrides CATTREE_DB_PATH)")
	cmd.PersistentFlags().String("as", "", "Actor recorded in the event log (overrides CATTREE_ACTOR)")
	cmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, ndjson, yaml, tsv")
}
