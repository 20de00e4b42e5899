package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/lock"
	"github.com/lherron/cattree/internal/store"
	"go.uber.org/zap"
)

// Outcome is what happened to one step
type Outcome string

const (
	Applied Outcome = "applied"
	Skipped Outcome = "skipped"
)

// StepResult pairs a step with its outcome
type StepResult struct {
	Step    Step    `json:"step"`
	Outcome Outcome `json:"outcome"`
	Rows    int64   `json:"rows,omitempty"`
}

// Result summarizes a completed execution
type Result struct {
	Steps         []StepResult `json:"steps"`
	Applied       int          `json:"applied"`
	Skipped       int          `json:"skipped"`
	Writes        int          `json:"writes"`
	RewrittenRefs int64        `json:"rewritten_refs"`
}

func (r *Result) record(step Step, outcome Outcome, rows int64) {
	r.Steps = append(r.Steps, StepResult{Step: step, Outcome: outcome, Rows: rows})
	if outcome == Applied {
		r.Applied++
		r.Writes++
		r.RewrittenRefs += rows
	} else {
		r.Skipped++
	}
}

// PartialFailureError reports a merge that stopped part way. Committed steps
// stay committed; re-running Execute with the same plan resumes, because every
// step skips work that is already done. Failed is nil when the run stopped on
// cancellation between steps.
type PartialFailureError struct {
	Committed []StepResult
	Failed    *Step
	Pending   []Step
	Err       error
}

func (e *PartialFailureError) Error() string {
	if e.Failed == nil {
		return fmt.Sprintf("merge interrupted after %d steps, %d pending: %v", len(e.Committed), len(e.Pending), e.Err)
	}
	return fmt.Sprintf("merge failed at step %d (%s), %d pending: %v", len(e.Committed)+1, e.Failed, len(e.Pending), e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Invalidator drops cached tree indexes for a type
type Invalidator interface {
	Invalidate(nodeType string)
}

// Executor applies plans against the store
type Executor struct {
	nodes  store.NodeRepository
	refs   store.ReferenceRepository
	actor  string
	logger *zap.Logger
	cache  Invalidator
	locker lock.Locker
}

// Option configures an Executor
type Option func(*Executor)

// WithActor sets the actor recorded in the event log
func WithActor(actor string) Option {
	return func(e *Executor) { e.actor = actor }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithCache invalidates the type's tree index after any write
func WithCache(c Invalidator) Option {
	return func(e *Executor) { e.cache = c }
}

// WithLocker serializes executions per type
func WithLocker(l lock.Locker) Option {
	return func(e *Executor) { e.locker = l }
}

// NewExecutor creates an executor
func NewExecutor(nodes store.NodeRepository, refs store.ReferenceRepository, opts ...Option) *Executor {
	e := &Executor{nodes: nodes, refs: refs, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies the plan's steps in order. It returns *PartialFailureError
// when a step fails or ctx is cancelled; cancellation is only observed
// between steps, and a started step always runs to completion.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	log := e.logger.With(
		zap.String("type", plan.Type),
		zap.String("source", plan.Source.ID),
		zap.String("target", plan.Target.ID),
	)

	if e.locker != nil {
		release, err := e.locker.Acquire(ctx, lock.TypeKey(plan.Type))
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", plan.Type, err)
		}
		defer release()
	}

	steps := plan.Steps()
	result := &Result{}
	defer func() {
		if e.cache != nil && result.Writes > 0 {
			e.cache.Invalidate(plan.Type)
		}
	}()

	stepCtx := context.WithoutCancel(ctx)
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			log.Warn("merge interrupted", zap.Int("step", i), zap.Error(err))
			return result, &PartialFailureError{Committed: result.Steps, Pending: steps[i:], Err: err}
		}

		outcome, rows, err := e.apply(stepCtx, step)
		if err != nil {
			failed := step
			log.Error("merge step failed",
				zap.Int("step", i),
				zap.String("kind", string(step.Kind)),
				zap.String("node", step.NodeID),
				zap.Error(err))
			return result, &PartialFailureError{Committed: result.Steps, Failed: &failed, Pending: steps[i+1:], Err: err}
		}

		log.Debug("merge step",
			zap.Int("step", i),
			zap.String("kind", string(step.Kind)),
			zap.String("node", step.NodeID),
			zap.String("outcome", string(outcome)),
			zap.Int64("rows", rows))
		result.record(step, outcome, rows)
	}

	log.Info("merge complete",
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int64("rewritten_refs", result.RewrittenRefs))
	return result, nil
}

func (e *Executor) apply(ctx context.Context, step Step) (Outcome, int64, error) {
	switch step.Kind {
	case StepReparent:
		node, err := e.nodes.Get(ctx, step.NodeID)
		if err != nil {
			return "", 0, err
		}
		if node.Parent() == step.TargetID {
			return Skipped, 0, nil
		}
		target := step.TargetID
		if _, err := e.nodes.Update(ctx, e.actor, step.NodeID, store.UpdateParams{
			Parent: &store.ParentChange{ParentID: &target},
		}); err != nil {
			return "", 0, err
		}
		return Applied, 0, nil

	case StepRewriteReferences:
		n, err := e.refs.RewriteReferences(ctx, e.actor, step.Dependent, step.NodeID, step.TargetID)
		if err != nil {
			return "", n, err
		}
		if n == 0 {
			return Skipped, 0, nil
		}
		return Applied, n, nil

	case StepDeactivate:
		node, err := e.nodes.Get(ctx, step.NodeID)
		if err != nil {
			return "", 0, err
		}
		if !node.Active {
			return Skipped, 0, nil
		}
		inactive := false
		if _, err := e.nodes.Update(ctx, e.actor, step.NodeID, store.UpdateParams{Active: &inactive}); err != nil {
			return "", 0, err
		}
		return Applied, 0, nil
	}
	return "", 0, domain.Errorf(domain.ErrInvalidInput, step.NodeID, "unknown step kind %q", step.Kind)
}

// IsPartialFailure reports whether err is a resumable partial merge
func IsPartialFailure(err error) bool {
	var pf *PartialFailureError
	return errors.As(err, &pf)
}
