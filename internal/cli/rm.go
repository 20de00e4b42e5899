package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <NODE>...",
	Short: "Delete nodes",
	Long: `Delete nodes permanently. A node that still has children (active or
not) or that is referenced by a dependent collection cannot be deleted;
merge it into another node or deactivate it instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runRm),
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)
	for _, arg := range args {
		id, err := resolveID(app, cmd, arg)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		if err := app.Catalog.Delete(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	}
	return nil
}
