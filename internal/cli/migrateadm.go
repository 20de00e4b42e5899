package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/db"
	"github.com/lherron/cattree/internal/render"
	"github.com/spf13/cobra"
)

var migrateAdmCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending database migrations",
	Long: `Migrate applies any pending SQL migrations to the database.

Migrations are embedded in the binary and tracked via the schema_migrations
table. Each migration file (e.g., 000001_baseline.sql) is applied exactly once.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{}, runMigrateAdm),
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootAdmCmd.AddCommand(migrateAdmCmd)

	migrateAdmCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateAdmCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

func runMigrateAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	if app.Config.DBPath == "" {
		return exitError(exitInvalid, fmt.Errorf("database path not specified (use --db flag or set CATTREE_DB_PATH)"))
	}

	database, err := db.Open(app.Config.DBPath)
	if err != nil {
		return exitError(exitGeneral, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}

	var st migrationState
	if migrateStatus || migrateDryRun {
		st.Applied, st.Pending, err = database.MigrationStatus()
	} else {
		st.Ran, err = database.MigrateWithInfo()
	}
	if err != nil {
		return exitError(exitGeneral, fmt.Errorf("failed to run migrations: %w", err))
	}
	st.Database = database.Path()

	if r.Structured() {
		row := []string{st.Database, strings.Join(st.Applied, ","), strings.Join(st.Pending, ","), strings.Join(st.Ran, ",")}
		return render.Render(r, []migrationState{st}, []string{"DATABASE", "APPLIED", "PENDING", "RAN"}, [][]string{row})
	}
	printMigrationState(cmd.OutOrStdout(), st, migrateStatus)
	return nil
}

type migrationState struct {
	Database string   `json:"database" yaml:"database"`
	Applied  []string `json:"applied,omitempty" yaml:"applied,omitempty"`
	Pending  []string `json:"pending,omitempty" yaml:"pending,omitempty"`
	Ran      []string `json:"ran,omitempty" yaml:"ran,omitempty"`
}

func printMigrationState(out io.Writer, st migrationState, verbose bool) {
	if verbose {
		fmt.Fprintf(out, "Database: %s\n", st.Database)
		fmt.Fprintf(out, "Applied migrations (%d):\n", len(st.Applied))
		for _, m := range st.Applied {
			fmt.Fprintf(out, "  ✓ %s\n", m)
		}
	}
	switch {
	case len(st.Ran) > 0:
		fmt.Fprintf(out, "Applied %d migration(s):\n", len(st.Ran))
		for _, m := range st.Ran {
			fmt.Fprintf(out, "  ✓ %s\n", m)
		}
	case len(st.Pending) > 0:
		fmt.Fprintf(out, "Pending migrations (%d):\n", len(st.Pending))
		for _, m := range st.Pending {
			fmt.Fprintf(out, "  • %s\n", m)
		}
	default:
		fmt.Fprintln(out, "Database is up to date.")
	}
}
