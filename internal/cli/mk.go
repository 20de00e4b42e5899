package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/spf13/cobra"
)

var mkCmd = &cobra.Command{
	Use:   "mk <NAME>",
	Short: "Create a category node",
	Long: `Create a node. Without --parent the node is a root of --type; with
--parent it is created one level below the parent, in the parent's type.

Examples:
  cattree mk --type receitas "Guarnição" --code 017
  cattree mk --parent 3f0c6c8e-... "Arroz"
  cattree mk --parent receitas:Guarnição "Arroz"
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runMk),
}

var (
	mkType   string
	mkParent string
	mkCode   string
)

func init() {
	rootCmd.AddCommand(mkCmd)
	mkCmd.Flags().StringVarP(&mkType, "type", "t", "", "Category type for a root node")
	mkCmd.Flags().StringVarP(&mkParent, "parent", "p", "", "Parent node (id or <type>:<path>)")
	mkCmd.Flags().StringVar(&mkCode, "code", "", "External classification code")
}

func runMk(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)

	var (
		n   *domain.Node
		err error
	)
	switch {
	case mkParent != "":
		parent, perr := app.Catalog.Resolve(ctx, mkParent)
		if perr != nil {
			return perr
		}
		if mkType != "" && parent.Type != mkType {
			return domain.Errorf(domain.ErrTypeMismatch, parent.ID, "parent is of type %s, not %s", parent.Type, mkType)
		}
		n, err = app.Catalog.CreateUnder(ctx, parent.ID, args[0], mkCode)
	case mkType != "":
		n, err = app.Catalog.Create(ctx, mkType, args[0], mkCode)
	default:
		return exitError(exitInvalid, fmt.Errorf("give --type for a root or --parent for a child"))
	}
	if err != nil {
		return err
	}

	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderNodes(r, []domain.Node{*n})
}
