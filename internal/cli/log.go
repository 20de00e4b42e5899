package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/events"
	"github.com/lherron/cattree/internal/render"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <NODE|TYPE>",
	Short: "Show change history for a node or type",
	Long: `Show change history from the event log, newest first. The argument is a
node id (node events and reference rewrites away from it) or a type key.

Examples:
  cattree log 3f0c6c8e-...
  cattree log receitas --limit 10
  cattree log 3f0c6c8e-... -o json
  cattree log 3f0c6c8e-... --limit 20 --cursor <next cursor from the previous page>
`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLog),
}

var (
	logLimit  int
	logCursor string
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "Limit number of events (0 = unlimited)")
	logCmd.Flags().StringVar(&logCursor, "cursor", "", "Continue after the page that printed this cursor")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	resource := args[0]
	if strings.Contains(resource, ":") {
		id, err := resolveID(app, cmd, resource)
		if err != nil {
			return err
		}
		resource = id
	}
	evs, next, err := events.Page(app.DB.DB, resource, logLimit, logCursor)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	r, err := app.Renderer(cmd)
	if err != nil {
		return exitError(exitInvalid, err)
	}
	if err := renderEvents(r, evs); err != nil {
		return err
	}
	if next != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "next: %s\n", next)
	}
	return nil
}

func renderEvents(r *render.Renderer, evs []domain.Event) error {
	if evs == nil {
		evs = []domain.Event{}
	}
	rows := make([][]string, len(evs))
	for i, e := range evs {
		actor, etag, payload := "", "", ""
		if e.Actor != nil {
			actor = *e.Actor
		}
		if e.ETag != nil {
			etag = fmt.Sprintf("%d", *e.ETag)
		}
		if e.Payload != nil {
			payload = *e.Payload
		}
		rows[i] = []string{e.Timestamp.Local().Format(time.DateTime), actor, e.EventType, etag, payload}
	}
	return render.Render(r, evs, []string{"TIME", "ACTOR", "EVENT", "ETAG", "PAYLOAD"}, rows)
}
