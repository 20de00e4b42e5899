package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <NODE> [NAME]",
	Short: "Rename a node or change its code",
	Long: `Change a node's display name, its external code, or both.

Examples:
  cattree rename 3f0c6c8e-... "Guarnições"
  cattree rename 3f0c6c8e-... --code 017.1
  cattree rename 3f0c6c8e-... --code ""            # clear the code
  cattree rename 3f0c6c8e-... "Arroz" --if-match 3  # fail if changed since etag 3
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runRename),
}

var (
	renameCode    string
	renameIfMatch int64
)

func init() {
	rootCmd.AddCommand(renameCmd)
	renameCmd.Flags().StringVar(&renameCode, "code", "", "New external code (empty clears it)")
	renameCmd.Flags().Int64Var(&renameIfMatch, "if-match", 0, "Only update if the node's etag matches")
}

func runRename(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)
	codeSet := cmd.Flags().Changed("code")
	if len(args) == 1 && !codeSet {
		return exitError(exitInvalid, fmt.Errorf("give a new name, --code, or both"))
	}

	var (
		n   *domain.Node
		err error
	)
	id, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	ifMatch := renameIfMatch
	if len(args) == 2 {
		if n, err = app.Catalog.Rename(ctx, id, args[1], ifMatch); err != nil {
			return err
		}
		ifMatch = 0
	}
	if codeSet {
		if n, err = app.Catalog.SetCode(ctx, id, renameCode, ifMatch); err != nil {
			return err
		}
	}

	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderNodes(r, []domain.Node{*n})
}
