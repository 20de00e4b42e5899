package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/lherron/cattree/internal/cli/appctx"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/merge"
	"github.com/lherron/cattree/internal/render"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitGeneral   = 1
	exitInvalid   = 2
	exitNotFound  = 3
	exitConflict  = 4
	exitPartial   = 5
	exitIntegrity = 6
)

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	var mismatch *domain.ETagMismatchError
	switch {
	case merge.IsPartialFailure(err):
		return exitPartial
	case errors.As(err, &mismatch), errors.Is(err, domain.ErrAlreadyExists), domain.IsPrecondition(err):
		return exitConflict
	case errors.Is(err, domain.ErrNotFound):
		return exitNotFound
	case domain.IsValidation(err):
		return exitInvalid
	case errors.Is(err, domain.ErrOrphanParent), errors.Is(err, domain.ErrLevelMismatch), errors.Is(err, domain.ErrCycleDetected):
		return exitIntegrity
	}
	return exitGeneral
}

var nodeHeaders = []string{"ID", "LEVEL", "ORDER", "CODE", "NAME", "ACTIVE"}

func nodeRows(nodes []domain.Node) [][]string {
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		rows[i] = []string{
			n.ID,
			strconv.Itoa(n.Level),
			strconv.Itoa(n.Order),
			n.Code,
			n.Name,
			strconv.FormatBool(n.Active),
		}
	}
	return rows
}

func renderNodes(r *render.Renderer, nodes []domain.Node) error {
	if nodes == nil {
		nodes = []domain.Node{}
	}
	return render.Render(r, nodes, nodeHeaders, nodeRows(nodes))
}

// resolveID turns a node selector argument (an id or <type>:<path>) into an id
func resolveID(app *appctx.App, cmd *cobra.Command, selector string) (string, error) {
	n, err := app.Catalog.Resolve(appctx.Context(cmd), selector)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

func parseOrder(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, exitError(exitInvalid, fmt.Errorf("order must be an integer, got %q", s))
	}
	return n, nil
}
