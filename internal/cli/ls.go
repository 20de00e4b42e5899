package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [NODE]",
	Short: "List roots of a type, or the children of a node",
	Long: `List active nodes. With no argument, lists the roots of --type.
With a node (an id or <type>:<path>), lists that node's children.

Examples:
  cattree ls --type receitas
  cattree ls 3f0c6c8e-...            # children of a node
  cattree ls receitas:Guarnição      # same, by name path
  cattree ls --type receitas --all   # include inactive roots
`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLs),
}

var (
	lsType string
	lsAll  bool
)

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringVarP(&lsType, "type", "t", "", "Category type")
	lsCmd.Flags().BoolVarP(&lsAll, "all", "a", false, "Include inactive nodes")
}

func runLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)

	var nodes []domain.Node
	switch {
	case len(args) == 1:
		n, err := app.Catalog.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		ix, err := app.Catalog.Tree(ctx, n.Type)
		if err != nil {
			return err
		}
		if lsAll {
			nodes = ix.AllChildren(n.ID)
		} else {
			nodes = ix.Children(n.ID)
		}
	case lsType != "":
		ix, err := app.Catalog.Tree(ctx, lsType)
		if err != nil {
			return err
		}
		if !lsAll {
			nodes = ix.Roots()
			break
		}
		for _, n := range ix.Nodes() {
			if n.IsRoot() {
				nodes = append(nodes, n)
			}
		}
	default:
		return exitError(exitInvalid, fmt.Errorf("give a node id or --type"))
	}

	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderNodes(r, nodes)
}
