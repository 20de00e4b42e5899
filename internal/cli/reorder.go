package cli

import (
	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/spf13/cobra"
)

var reorderCmd = &cobra.Command{
	Use:   "reorder <NODE> <ORDER>",
	Short: "Set a node's position among its siblings",
	Args:  cobra.ExactArgs(2),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runReorder),
}

func init() {
	rootCmd.AddCommand(reorderCmd)
}

func runReorder(app *appctx.App, cmd *cobra.Command, args []string) error {
	order, err := parseOrder(args[1])
	if err != nil {
		return err
	}
	id, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	n, err := app.Catalog.Reorder(appctx.Context(cmd), id, order)
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderNodes(r, []domain.Node{*n})
}
