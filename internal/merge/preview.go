package merge

import (
	"context"
	"fmt"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/store"
	"github.com/lherron/cattree/internal/tree"
	"github.com/pmezard/go-difflib/difflib"
)

// Preview is the simulated effect of a plan on its type's tree
type Preview struct {
	Before string
	After  string
	Diff   string
}

// Simulate applies plan to an in-memory copy of nodes (the plan type's full
// node set) and returns a unified diff of the rendered trees. Reference
// rewrites are not simulated.
func Simulate(ctx context.Context, plan *Plan, nodes []domain.Node) (*Preview, error) {
	mem := store.NewMemory(store.Options{Dependents: []domain.Dependent{}})
	mem.Load(nodes)

	opts := tree.RenderOptions{ShowInactive: true}
	before := tree.RenderString(tree.Build(nodes), opts)

	steps := plan.Steps()
	nodeOnly := &Plan{Type: plan.Type, Source: plan.Source, Target: plan.Target}
	for i := range steps {
		if steps[i].Kind != StepRewriteReferences {
			nodeOnly.Items = append(nodeOnly.Items, Item{Step: &steps[i]})
		}
	}

	if _, err := NewExecutor(mem.Nodes, mem.Refs).Execute(ctx, nodeOnly); err != nil {
		return nil, fmt.Errorf("simulate merge: %w", err)
	}

	afterNodes, err := mem.Nodes.ListByType(ctx, plan.Type, true)
	if err != nil {
		return nil, err
	}
	after := tree.RenderString(tree.Build(afterNodes), opts)

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}
	return &Preview{Before: before, After: after, Diff: diff}, nil
}
