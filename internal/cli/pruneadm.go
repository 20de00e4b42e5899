package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/paths"
	"github.com/spf13/cobra"
)

var pruneAdmCmd = &cobra.Command{
	Use:   "prune <GLOB>",
	Short: "Delete the nodes of a type whose name path matches a glob",
	Long: `Delete every node of --type whose path of names matches GLOB, children
before parents. Matching ignores case and accents. * and ? match within one
level, ** matches any number of levels. The run stops at the first node that
cannot be deleted (it still has children outside the match, or references).

Examples:
  cattreeadm prune --type ingredientes 'obsoletos/**' --dry-run
  cattreeadm prune --type receitas '*/teste*'
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runPruneAdm),
}

var (
	pruneType   string
	pruneDryRun bool
)

func init() {
	rootAdmCmd.AddCommand(pruneAdmCmd)
	pruneAdmCmd.Flags().StringVarP(&pruneType, "type", "t", "", "Category type (required)")
	pruneAdmCmd.Flags().BoolVarP(&pruneDryRun, "dry-run", "n", false, "List matching nodes without deleting")
	_ = pruneAdmCmd.MarkFlagRequired("type")
}

func runPruneAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)
	out := cmd.OutOrStdout()

	if pruneDryRun {
		matched, err := app.Catalog.Match(ctx, pruneType, args[0])
		if err != nil {
			return err
		}
		ix, err := app.Catalog.Tree(ctx, pruneType)
		if err != nil {
			return err
		}
		for _, n := range matched {
			names, err := ix.PathNames(n.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s  %s\n", n.ID, paths.JoinPath(names...))
		}
		fmt.Fprintf(out, "%d node(s) match\n", len(matched))
		return nil
	}

	res, err := app.Catalog.DeleteMatching(ctx, pruneType, args[0], out)
	if res != nil {
		res.PrintSummary(cmd.ErrOrStderr())
	}
	if err != nil {
		if res != nil && res.Succeeded > 0 {
			return exitError(exitPartial, err)
		}
		return err
	}
	return nil
}
