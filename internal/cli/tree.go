package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/tree"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the tree of a category type",
	Long: `Print a type's tree with box-drawing branches.

Examples:
  cattree tree --type receitas
  cattree tree --type receitas --all --ids
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runTree),
}

var (
	treeType string
	treeAll  bool
	treeIDs  bool
)

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().StringVarP(&treeType, "type", "t", "", "Category type (required)")
	treeCmd.Flags().BoolVarP(&treeAll, "all", "a", false, "Include inactive nodes")
	treeCmd.Flags().BoolVar(&treeIDs, "ids", false, "Show node ids")
	_ = treeCmd.MarkFlagRequired("type")
}

func runTree(app *appctx.App, cmd *cobra.Command, args []string) error {
	ix, err := app.Catalog.Tree(appctx.Context(cmd), treeType)
	if err != nil {
		return err
	}
	if ix.Len() == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "no nodes in %s\n", treeType)
		return nil
	}
	return tree.Render(cmd.OutOrStdout(), ix, tree.RenderOptions{ShowInactive: treeAll, ShowIDs: treeIDs})
}
