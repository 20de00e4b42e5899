package cli

import (
	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate <NODE>",
	Short: "Make an inactive node visible again",
	Long:  `Reactivate a node. Its parent must be active.`,
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runActivate),
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <NODE>",
	Short: "Hide a node without deleting it",
	Long: `Deactivate a node. References to it stay valid. A node with active
children cannot be deactivated; move or deactivate the children first.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDeactivate),
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deactivateCmd)
}

func runActivate(app *appctx.App, cmd *cobra.Command, args []string) error {
	id, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	n, err := app.Catalog.Activate(appctx.Context(cmd), id)
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderNodes(r, []domain.Node{*n})
}

func runDeactivate(app *appctx.App, cmd *cobra.Command, args []string) error {
	id, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	n, err := app.Catalog.Deactivate(appctx.Context(cmd), id)
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderNodes(r, []domain.Node{*n})
}
