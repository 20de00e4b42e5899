package cli

import (
	"fmt"
	"os"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/db"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/tree"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var doctorAdmCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database health and tree integrity",
	Long: `Performs health checks on the database file and schema, then validates
every category tree: parents exist and share the node's type, levels match
depth, nothing sits below level 3 and no parent chain loops.

Exits with status 6 when any tree is corrupt.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDoctorAdm),
}

var (
	doctorType    string
	doctorJSON    bool
	doctorVerbose bool
)

type checkResult struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "ok", "warning", "error"
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type doctorReport struct {
	DBPath        string        `json:"db_path"`
	Checks        []checkResult `json:"checks"`
	Warnings      int           `json:"warnings"`
	Errors        int           `json:"errors"`
	OverallStatus string        `json:"overall_status"`
}

func init() {
	rootAdmCmd.AddCommand(doctorAdmCmd)
	doctorAdmCmd.Flags().StringVarP(&doctorType, "type", "t", "", "Only validate this type")
	doctorAdmCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output JSON")
	doctorAdmCmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "List every violation")
}

func runDoctorAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	report := &doctorReport{DBPath: app.Config.DBPath}
	report.Checks = append(report.Checks, checkDatabaseFile(app.Config.DBPath)...)
	report.Checks = append(report.Checks, checkDatabasePragmas(app.DB)...)

	trees, err := checkTrees(app, cmd)
	if err != nil {
		return err
	}
	report.Checks = append(report.Checks, trees...)

	for _, c := range report.Checks {
		switch c.Status {
		case "warning":
			report.Warnings++
		case "error":
			report.Errors++
		}
	}
	report.OverallStatus = "ok"
	if report.Errors > 0 {
		report.OverallStatus = "error"
	} else if report.Warnings > 0 {
		report.OverallStatus = "warning"
	}

	if doctorJSON {
		r, err := app.Renderer(cmd)
		if err != nil {
			return exitError(exitInvalid, err)
		}
		if err := r.RenderJSON(report); err != nil {
			return err
		}
	} else {
		printDoctorReport(cmd, report)
	}

	if report.Errors > 0 {
		return exitError(exitIntegrity, fmt.Errorf("%d check(s) failed", report.Errors))
	}
	return nil
}

// checkTrees validates each type's tree concurrently
func checkTrees(app *appctx.App, cmd *cobra.Command) ([]checkResult, error) {
	keys := []string{doctorType}
	if doctorType == "" {
		types, err := app.Registry.List(appctx.Context(cmd))
		if err != nil {
			return nil, err
		}
		keys = keys[:0]
		for _, t := range types {
			keys = append(keys, t.Key)
		}
	}

	results := make([]checkResult, len(keys))
	g, ctx := errgroup.WithContext(appctx.Context(cmd))
	g.SetLimit(4)
	for i, key := range keys {
		g.Go(func() error {
			nodes, err := app.Store.Nodes.ListByType(ctx, key, true)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", key, err)
			}
			results[i] = treeCheck(key, nodes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func treeCheck(key string, nodes []domain.Node) checkResult {
	violations := tree.Build(nodes).Validate()
	if len(violations) == 0 {
		return checkResult{
			Name:    "tree:" + key,
			Status:  "ok",
			Message: fmt.Sprintf("%s: %d nodes, tree is consistent", key, len(nodes)),
		}
	}
	res := checkResult{
		Name:    "tree:" + key,
		Status:  "error",
		Message: fmt.Sprintf("%s: %d violation(s) in %d nodes", key, len(violations), len(nodes)),
	}
	for _, v := range violations {
		res.Details = append(res.Details, v.String())
	}
	return res
}

func checkDatabaseFile(dbPath string) []checkResult {
	info, err := os.Stat(dbPath)
	if err != nil {
		return []checkResult{{
			Name:    "db_file_exists",
			Status:  "error",
			Message: fmt.Sprintf("Database file not found: %s", dbPath),
		}}
	}

	results := []checkResult{{
		Name:    "db_file_exists",
		Status:  "ok",
		Message: fmt.Sprintf("Database file: %s (%.1f MB)", dbPath, float64(info.Size())/(1024*1024)),
	}}

	f, err := os.OpenFile(dbPath, os.O_RDWR, 0)
	if err != nil {
		return append(results, checkResult{
			Name:    "db_file_permissions",
			Status:  "error",
			Message: fmt.Sprintf("Database file not writable: %v", err),
		})
	}
	f.Close()
	return append(results, checkResult{
		Name:    "db_file_permissions",
		Status:  "ok",
		Message: "Database file is readable and writable",
	})
}

func checkDatabasePragmas(database *db.DB) []checkResult {
	var results []checkResult

	var journalMode string
	database.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if journalMode == "wal" {
		results = append(results, checkResult{Name: "wal_mode", Status: "ok", Message: "WAL mode enabled"})
	} else {
		results = append(results, checkResult{
			Name:    "wal_mode",
			Status:  "warning",
			Message: fmt.Sprintf("WAL mode not enabled (current: %s)", journalMode),
		})
	}

	problems, err := database.Integrity()
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "integrity_check", Status: "error", Message: err.Error()})
	case len(problems) == 0:
		results = append(results, checkResult{Name: "integrity_check", Status: "ok", Message: "Database integrity check passed"})
	default:
		results = append(results, checkResult{
			Name:    "integrity_check",
			Status:  "error",
			Message: fmt.Sprintf("Database integrity check found %d problem(s)", len(problems)),
			Details: append(problems, "Restore from backup recommended"),
		})
	}
	return results
}

func printDoctorReport(cmd *cobra.Command, report *doctorReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s\n\n", report.DBPath)

	for _, check := range report.Checks {
		icon := "✓"
		switch check.Status {
		case "warning":
			icon = "⚠"
		case "error":
			icon = "✗"
		}
		fmt.Fprintf(out, "  %s %s\n", icon, check.Message)

		details := check.Details
		if !doctorVerbose && len(details) > 5 {
			details = details[:5]
		}
		for _, d := range details {
			fmt.Fprintf(out, "      %s\n", d)
		}
		if len(details) < len(check.Details) {
			fmt.Fprintf(out, "      ... %d more (use --verbose)\n", len(check.Details)-len(details))
		}
	}
	fmt.Fprintln(out)

	switch {
	case report.Errors > 0:
		fmt.Fprintf(out, "Summary: %d error(s), %d warning(s)\n", report.Errors, report.Warnings)
	case report.Warnings > 0:
		fmt.Fprintf(out, "Summary: %d warning(s)\n", report.Warnings)
	default:
		fmt.Fprintln(out, "Summary: All checks passed ✓")
	}
}
