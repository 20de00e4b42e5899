package cli

import (
	"fmt"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/spf13/cobra"
)

var typeAdmCmd = &cobra.Command{
	Use:   "type",
	Short: "Manage category types",
}

var typeAddCmd = &cobra.Command{
	Use:   "add <LABEL>",
	Short: "Register a category type",
	Long: `Register a type. The key is derived from the label unless --key is
given: "Receitas - Base" becomes receitas_-_base.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runTypeAdd),
}

var typeRenameCmd = &cobra.Command{
	Use:   "rename <KEY> <LABEL>",
	Short: "Change a type's display label (the key never changes)",
	Args:  cobra.ExactArgs(2),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runTypeRename),
}

var typeRetireCmd = &cobra.Command{
	Use:   "retire <KEY>",
	Short: "Remove a type that has no active nodes",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runTypeRetire),
}

var (
	typeAddKey    string
	typeAddOrder  int
	typeAddSystem bool
)

func init() {
	rootAdmCmd.AddCommand(typeAdmCmd)
	typeAdmCmd.AddCommand(typeAddCmd, typeRenameCmd, typeRetireCmd)

	typeAddCmd.Flags().StringVar(&typeAddKey, "key", "", "Explicit key (normalized)")
	typeAddCmd.Flags().IntVar(&typeAddOrder, "order", 100, "Display order")
	typeAddCmd.Flags().BoolVar(&typeAddSystem, "system", false, "Mark as a system type that cannot be retired")
}

func runTypeAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	t, err := app.Registry.Register(appctx.Context(cmd), typeAddKey, args[0], typeAddOrder, typeAddSystem)
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderTypes(r, []domain.CategoryType{*t})
}

func runTypeRename(app *appctx.App, cmd *cobra.Command, args []string) error {
	t, err := app.Registry.Rename(appctx.Context(cmd), args[0], args[1])
	if err != nil {
		return err
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	return renderTypes(r, []domain.CategoryType{*t})
}

func runTypeRetire(app *appctx.App, cmd *cobra.Command, args []string) error {
	if err := app.Registry.Retire(appctx.Context(cmd), args[0]); err != nil {
		return err
	}
	app.Cache.Invalidate(args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "retired %s\n", args[0])
	return nil
}
