package cli

import (
	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/spf13/cobra"
)

var mvCmd = &cobra.Command{
	Use:   "mv <NODE> <PARENT|->",
	Short: "Move a node and its subtree under another parent",
	Long: `Move a node, with everything below it, under another node of the same
type. Use "-" as the parent to promote the node to a root. Levels of the
whole subtree are recomputed; the move fails if any node would end up
deeper than level 3.`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMv),
}

var mvIfMatch int64

func init() {
	rootCmd.AddCommand(mvCmd)
	mvCmd.Flags().Int64Var(&mvIfMatch, "if-match", 0, "Only move if the node's etag matches")
}

func runMv(app *appctx.App, cmd *cobra.Command, args []string) error {
	id, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	parent := ""
	if args[1] != "-" {
		if parent, err = resolveID(app, cmd, args[1]); err != nil {
			return err
		}
	}
	n, err := app.Catalog.Move(appctx.Context(cmd), id, parent, mvIfMatch)
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderNodes(r, []domain.Node{*n})
}
