package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/paths"
	"github.com/spf13/cobra"
)

var pathCmd = &cobra.Command{
	Use:   "path <NODE>",
	Short: "Show the path from the root down to a node",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runPath),
}

func init() {
	rootCmd.AddCommand(pathCmd)
}

func runPath(app *appctx.App, cmd *cobra.Command, args []string) error {
	id, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	chain, err := app.Catalog.Path(appctx.Context(cmd), id)
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	if r.Structured() {
		return renderNodes(r, chain)
	}

	names := make([]string, len(chain))
	for i, n := range chain {
		names[i] = n.Name
	}
	fmt.Fprintln(cmd.OutOrStdout(), paths.JoinPath(names...))
	return nil
}
