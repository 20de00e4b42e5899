package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/db"
	"github.com/lherron/cattree/internal/registry"
	"github.com/lherron/cattree/internal/store"
	"github.com/spf13/cobra"
)

var initAdmCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the cattree database",
	Long: `Initialize creates the SQLite database, runs migrations and registers
the system category types (ingredientes, receitas, contas). Running it again
is safe: existing data and types are left alone.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{}, runInitAdm),
}

func init() {
	rootAdmCmd.AddCommand(initAdmCmd)
}

func runInitAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	database, err := db.Open(app.Config.DBPath)
	if err != nil {
		return exitError(exitGeneral, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(exitGeneral, fmt.Errorf("failed to run migrations: %w", err))
	}

	s := store.New(database, store.Options{Dependents: app.Config.Dependents, BatchSize: app.Config.BatchSize})
	added, err := registry.New(s.Types, s.Nodes, app.Actor).EnsureDefaults(appctx.Context(cmd))
	if err != nil {
		return exitError(exitGeneral, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s\n", app.Config.DBPath)
	fmt.Fprintf(out, "Applied %d migration(s), registered %d system type(s)\n", len(applied), added)
	return nil
}
