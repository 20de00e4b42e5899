package cli

import (
	"strconv"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/render"
	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List category types",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runTypes),
}

func init() {
	rootCmd.AddCommand(typesCmd)
}

func runTypes(app *appctx.App, cmd *cobra.Command, args []string) error {
	types, err := app.Registry.List(appctx.Context(cmd))
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderTypes(r, types)
}

func renderTypes(r *render.Renderer, types []domain.CategoryType) error {
	if types == nil {
		types = []domain.CategoryType{}
	}
	rows := make([][]string, len(types))
	for i, t := range types {
		rows[i] = []string{t.Key, t.Label, strconv.Itoa(t.Order), strconv.FormatBool(t.IsSystem)}
	}
	return render.Render(r, types, []string{"KEY", "LABEL", "ORDER", "SYSTEM"}, rows)
}
