package cli

import (
	"fmt"
	"strings"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/dedupe"
	"github.com/lherron/cattree/internal/render"
	"github.com/spf13/cobra"
)

var dupesAdmCmd = &cobra.Command{
	Use:   "dupes",
	Short: "List duplicate clusters in a type",
	Long: `Find active nodes that duplicate each other: the same code anywhere in
the type, or the same normalized name under the same parent ("ROTISSERIA"
and "Rotisseria" are duplicates). Each cluster shows the survivor that a
merge would keep.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDupesAdm),
}

var (
	dupesType    string
	dupesNoCodes bool
	dupesNoNames bool
)

func init() {
	rootAdmCmd.AddCommand(dupesAdmCmd)
	dupesAdmCmd.Flags().StringVarP(&dupesType, "type", "t", "", "Category type (required)")
	dupesAdmCmd.Flags().BoolVar(&dupesNoCodes, "no-codes", false, "Do not match on code")
	dupesAdmCmd.Flags().BoolVar(&dupesNoNames, "no-names", false, "Do not match on name")
	_ = dupesAdmCmd.MarkFlagRequired("type")
}

func dedupeOptions() dedupe.Options {
	return dedupe.Options{SkipCodePass: dupesNoCodes, SkipNamePass: dupesNoNames}
}

type clusterView struct {
	Key      string   `json:"key" yaml:"key"`
	Survivor string   `json:"survivor" yaml:"survivor"`
	Sources  []string `json:"sources" yaml:"sources"`
}

func runDupesAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	clusters, err := dedupe.NewDetector(app.Store.Nodes, dedupeOptions()).FindDuplicates(appctx.Context(cmd), dupesType)
	if err != nil {
		return err
	}

	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	if len(clusters) == 0 && !r.Structured() {
		fmt.Fprintf(cmd.ErrOrStderr(), "no duplicates in %s\n", dupesType)
		return nil
	}

	views := make([]clusterView, len(clusters))
	rows := make([][]string, len(clusters))
	for i, c := range clusters {
		views[i] = clusterView{Key: c.Key, Survivor: c.Survivor.ID}
		names := make([]string, len(c.Sources))
		for j, s := range c.Sources {
			views[i].Sources = append(views[i].Sources, s.ID)
			names[j] = fmt.Sprintf("%s (%s)", s.Name, s.ID)
		}
		rows[i] = []string{c.Key, fmt.Sprintf("%s (%s)", c.Survivor.Name, c.Survivor.ID), strings.Join(names, ", ")}
	}
	return render.Render(r, views, []string{"MATCH", "SURVIVOR", "SOURCES"}, rows)
}
