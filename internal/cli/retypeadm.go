package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/spf13/cobra"
)

var retypeAdmCmd = &cobra.Command{
	Use:   "retype <ROOT> <TYPE>",
	Short: "Move a root and its whole subtree into another type",
	Long: `Move a root node and every node below it into another category type.
Levels and parents are unchanged. Fails if a moved code collides with an
active node of the destination type.`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runRetypeAdm),
}

func init() {
	rootAdmCmd.AddCommand(retypeAdmCmd)
}

func runRetypeAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)
	if _, err := app.Registry.Get(ctx, args[1]); err != nil {
		return err
	}
	root, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	moved, err := app.Catalog.Retype(ctx, root, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "moved %d node(s) to %s\n", moved, args[1])
	return nil
}
