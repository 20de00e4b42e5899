// Package bulk runs one operation over many node ids, sequentially or with a
// bounded worker pool, collecting per-item failures.
package bulk

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Operation configures a bulk run
type Operation struct {
	Jobs            int
	ContinueOnError bool
	// Ordered forces sequential execution in input order
	Ordered bool
	// Out receives one "<label>: ok|error" line per item when set
	Out io.Writer
	// Label names an item in Out and in errors; defaults to the item itself
	Label func(item string) string
}

// Result is the outcome of a bulk run
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Skipped    int
	Errors     []ItemError
}

// ItemError is the failure of one item
type ItemError struct {
	Item  string
	Label string
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// ItemFunc processes one item
type ItemFunc func(ctx context.Context, item string) error

// Execute runs fn over items. Without ContinueOnError the run halts at the
// first failure and the untouched items count as Skipped.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	if len(items) == 0 {
		return &Result{}
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if op.Ordered || jobs == 1 {
		return op.executeSequential(ctx, items, fn)
	}
	return op.executeParallel(ctx, items, fn, jobs)
}

func (op *Operation) label(item string) string {
	if op.Label == nil {
		return item
	}
	return op.Label(item)
}

func (op *Operation) report(item string, err error) {
	if op.Out == nil {
		return
	}
	if err != nil {
		fmt.Fprintf(op.Out, "%s: error: %v\n", op.label(item), err)
		return
	}
	fmt.Fprintf(op.Out, "%s: ok\n", op.label(item))
}

func (op *Operation) executeSequential(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{TotalItems: len(items)}

	for i, item := range items {
		err := ctx.Err()
		if err == nil {
			err = fn(ctx, item)
		}
		op.report(item, err)
		if err == nil {
			result.Succeeded++
			continue
		}

		result.Failed++
		result.Errors = append(result.Errors, ItemError{Item: item, Label: op.label(item), Err: err})
		if !op.ContinueOnError || ctx.Err() != nil {
			result.Skipped = len(items) - i - 1
			return result
		}
	}
	return result
}

func (op *Operation) executeParallel(ctx context.Context, items []string, fn ItemFunc, workers int) *Result {
	result := &Result{TotalItems: len(items)}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, item := range items {
		g.Go(func() error {
			if runCtx.Err() != nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			err := fn(runCtx, item)
			mu.Lock()
			defer mu.Unlock()
			op.report(item, err)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, ItemError{Item: item, Label: op.label(item), Err: err})
				if !op.ContinueOnError {
					cancel()
				}
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// ExitCode maps the result to a process exit code: 0 all ok, 5 partial, 1 none
func (r *Result) ExitCode() int {
	if r.Failed == 0 {
		return 0
	}
	if r.Succeeded > 0 {
		return 5
	}
	return 1
}

// Err returns the first item failure, or nil
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0:
		fmt.Fprintf(w, "✓ %d of %d succeeded\n", r.Succeeded, r.TotalItems)
	case r.Succeeded == 0:
		fmt.Fprintf(w, "✗ %d failed, %d skipped (of %d)\n", r.Failed, r.Skipped, r.TotalItems)
	default:
		fmt.Fprintf(w, "⚠ Partial: %d succeeded, %d failed, %d skipped (of %d)\n",
			r.Succeeded, r.Failed, r.Skipped, r.TotalItems)
	}

	shown := r.Errors
	if len(shown) > 10 {
		fmt.Fprintf(w, "Showing first 10 errors (of %d):\n", len(shown))
		shown = shown[:10]
	}
	for _, e := range shown {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
