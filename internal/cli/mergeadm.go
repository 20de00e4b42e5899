package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/dedupe"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/merge"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mergeAdmCmd = &cobra.Command{
	Use:   "merge <SOURCE> <TARGET>",
	Short: "Merge a node into another node of the same type",
	Long: `Merge SOURCE into TARGET: children of the source move under the target
(children matching a target child by code or name are merged recursively),
every dependent reference to the source is rewritten to the target, and the
source is deactivated.

Each step is idempotent. If a merge stops part way (exit status 5), run the
same command again to finish it.

Examples:
  cattreeadm merge 1b7e... 9c2d... --dry-run   # show plan and tree diff
  cattreeadm merge 1b7e... 9c2d...
  cattreeadm merge "ingredientes:Carnes/Bovinos" "ingredientes:Carnes/Carne Bovina"
`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.WithLock(), runMergeAdm),
}

var mergeDryRun bool

func init() {
	rootAdmCmd.AddCommand(mergeAdmCmd)
	mergeAdmCmd.Flags().BoolVarP(&mergeDryRun, "dry-run", "n", false, "Print the plan and the resulting tree diff without writing")
}

func newPlanner(app *appctx.App) *merge.Planner {
	return merge.NewPlanner(app.Store.Nodes, app.Store.Refs, app.Store.Dependents())
}

func newExecutor(app *appctx.App) *merge.Executor {
	return merge.NewExecutor(app.Store.Nodes, app.Store.Refs,
		merge.WithActor(app.Actor),
		merge.WithLogger(app.Logger),
		merge.WithCache(app.Cache),
		merge.WithLocker(app.Locker),
	)
}

func runMergeAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)
	out := cmd.OutOrStdout()

	source, err := resolveID(app, cmd, args[0])
	if err != nil {
		return err
	}
	target, err := resolveID(app, cmd, args[1])
	if err != nil {
		return err
	}
	plan, err := newPlanner(app).Plan(ctx, source, target)
	if err != nil {
		return err
	}
	fmt.Fprint(out, plan.String())

	if mergeDryRun {
		return printPreview(app, cmd, plan)
	}

	res, err := newExecutor(app).Execute(ctx, plan)
	if err != nil {
		return reportPartial(out, err)
	}
	printMergeResult(out, res)
	return nil
}

func printPreview(app *appctx.App, cmd *cobra.Command, plan *merge.Plan) error {
	ctx := appctx.Context(cmd)
	nodes, err := app.Store.Nodes.ListByType(ctx, plan.Type, true)
	if err != nil {
		return err
	}
	preview, err := merge.Simulate(ctx, plan, nodes)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), preview.Diff)
	return nil
}

func printMergeResult(w io.Writer, res *merge.Result) {
	if res.Writes == 0 {
		fmt.Fprintln(w, "nothing to do: merge already complete")
		return
	}
	fmt.Fprintf(w, "✓ %d step(s) applied, %d skipped, %d reference(s) rewritten\n",
		res.Applied, res.Skipped, res.RewrittenRefs)
}

func reportPartial(w io.Writer, err error) error {
	var pf *merge.PartialFailureError
	if !errors.As(err, &pf) {
		return err
	}
	fmt.Fprintf(w, "✗ merge stopped: %d step(s) committed, %d pending\n", len(pf.Committed), len(pf.Pending))
	if pf.Failed != nil {
		fmt.Fprintf(w, "  failed: %s\n", pf.Failed)
	}
	for _, s := range pf.Pending {
		fmt.Fprintf(w, "  pending: %s\n", s)
	}
	fmt.Fprintln(w, "Run the same command again to resume.")
	return err
}

var dedupeAdmCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Merge every duplicate cluster of a type into its survivor",
	Long: `Detect duplicate clusters (see dupes) and merge each source into its
cluster's survivor, one merge at a time. Detection runs again after every
merge, since a merge can create or dissolve clusters among the moved
children. Sources that cannot be merged (for example a subtree that would
become too deep) are reported and skipped.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.WithLock(), runDedupeAdm),
}

var (
	dedupeType   string
	dedupeDryRun bool
)

func init() {
	rootAdmCmd.AddCommand(dedupeAdmCmd)
	dedupeAdmCmd.Flags().StringVarP(&dedupeType, "type", "t", "", "Category type (required)")
	dedupeAdmCmd.Flags().BoolVarP(&dedupeDryRun, "dry-run", "n", false, "Print the plans without writing")
	dedupeAdmCmd.Flags().BoolVar(&dupesNoCodes, "no-codes", false, "Do not match on code")
	dedupeAdmCmd.Flags().BoolVar(&dupesNoNames, "no-names", false, "Do not match on name")
	_ = dedupeAdmCmd.MarkFlagRequired("type")
}

func runDedupeAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := appctx.Context(cmd)
	out := cmd.OutOrStdout()
	detector := dedupe.NewDetector(app.Store.Nodes, dedupeOptions())
	planner := newPlanner(app)
	executor := newExecutor(app)

	if dedupeDryRun {
		clusters, err := detector.FindDuplicates(ctx, dedupeType)
		if err != nil {
			return err
		}
		for _, c := range clusters {
			for _, src := range c.Sources {
				plan, err := planner.Plan(ctx, src.ID, c.Survivor.ID)
				if err != nil {
					fmt.Fprintf(out, "skip %q (%s): %v\n", src.Name, src.ID, err)
					continue
				}
				fmt.Fprint(out, plan.String())
			}
		}
		fmt.Fprintf(out, "%d cluster(s)\n", len(clusters))
		return nil
	}

	skipped := map[string]bool{}
	merged := 0
	for {
		clusters, err := detector.FindDuplicates(ctx, dedupeType)
		if err != nil {
			return err
		}
		source, target, ok := nextMerge(clusters, skipped)
		if !ok {
			break
		}

		plan, err := planner.Plan(ctx, source.ID, target.ID)
		if err != nil {
			if domain.IsValidation(err) {
				app.Logger.Warn("skipping duplicate", zap.String("source", source.ID), zap.Error(err))
				fmt.Fprintf(out, "skip %q (%s): %v\n", source.Name, source.ID, err)
				skipped[source.ID] = true
				continue
			}
			return err
		}

		if _, err := executor.Execute(ctx, plan); err != nil {
			return reportPartial(out, err)
		}
		merged++
		fmt.Fprintf(out, "merged %q (%s) into %q (%s)\n", source.Name, source.ID, target.Name, target.ID)
	}

	fmt.Fprintf(out, "✓ %d merge(s), %d skipped\n", merged, len(skipped))
	if len(skipped) > 0 {
		return exitError(exitPartial, fmt.Errorf("%d duplicate(s) could not be merged", len(skipped)))
	}
	return nil
}

// nextMerge picks the first source not already skipped
func nextMerge(clusters []dedupe.Cluster, skipped map[string]bool) (domain.Node, domain.Node, bool) {
	for _, c := range clusters {
		for _, src := range c.Sources {
			if !skipped[src.ID] {
				return src, c.Survivor, true
			}
		}
	}
	return domain.Node{}, domain.Node{}, false
}
