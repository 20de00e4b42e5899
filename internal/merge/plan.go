// Package merge plans and executes the consolidation of a duplicate node into
// a surviving node of the same type.
package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/lherron/cattree/internal/dedupe"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/paths"
	"github.com/lherron/cattree/internal/store"
	"github.com/lherron/cattree/internal/tree"
)

// StepKind identifies what a step does
type StepKind string

const (
	StepReparent          StepKind = "reparent"
	StepRewriteReferences StepKind = "rewrite_references"
	StepDeactivate        StepKind = "deactivate"
)

// Step is one idempotent unit of a merge.
//
//	reparent:           NodeID moves under TargetID
//	rewrite_references: Dependent rows pointing at NodeID now point at TargetID
//	deactivate:         NodeID becomes inactive
type Step struct {
	Kind      StepKind         `json:"kind"`
	NodeID    string           `json:"node_id"`
	TargetID  string           `json:"target_id,omitempty"`
	Dependent domain.Dependent `json:"dependent,omitempty"`
	Name      string           `json:"name,omitempty"`
	// References is the row count seen at planning time, when known
	References int `json:"references,omitempty"`
}

func (s Step) String() string {
	switch s.Kind {
	case StepReparent:
		return fmt.Sprintf("reparent %q (%s) under %s", s.Name, s.NodeID, s.TargetID)
	case StepRewriteReferences:
		msg := fmt.Sprintf("rewrite %s %s -> %s", s.Dependent, s.NodeID, s.TargetID)
		if s.References > 0 {
			msg += fmt.Sprintf(" (%d rows)", s.References)
		}
		return msg
	case StepDeactivate:
		return fmt.Sprintf("deactivate %q (%s)", s.Name, s.NodeID)
	}
	return string(s.Kind)
}

// Item is either a single step or a nested merge of a child pair
type Item struct {
	Step  *Step `json:"step,omitempty"`
	Merge *Plan `json:"merge,omitempty"`
}

// Plan is an ordered, side-effect free description of merging Source into
// Target. Items hold child handling first, then reference rewrites, then the
// deactivation of Source.
type Plan struct {
	Type   string      `json:"type"`
	Source domain.Node `json:"source"`
	Target domain.Node `json:"target"`
	Items  []Item      `json:"items"`
}

// Steps flattens nested merges depth-first into execution order
func (p *Plan) Steps() []Step {
	var out []Step
	for _, it := range p.Items {
		if it.Merge != nil {
			out = append(out, it.Merge.Steps()...)
		} else if it.Step != nil {
			out = append(out, *it.Step)
		}
	}
	return out
}

func (p *Plan) String() string {
	var b strings.Builder
	p.write(&b, "")
	return b.String()
}

func (p *Plan) write(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%smerge %q (%s) into %q (%s)\n", indent, p.Source.Name, p.Source.ID, p.Target.Name, p.Target.ID)
	for _, it := range p.Items {
		if it.Merge != nil {
			it.Merge.write(b, indent+"  ")
		} else if it.Step != nil {
			fmt.Fprintf(b, "%s  %s\n", indent, it.Step)
		}
	}
}

// Reader is the slice of the node store the planner reads
type Reader interface {
	Get(ctx context.Context, id string) (*domain.Node, error)
	ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error)
}

// Planner computes merge plans from a fresh scan of the store
type Planner struct {
	nodes      Reader
	refs       store.ReferenceRepository
	dependents []domain.Dependent
	normalize  func(string) string
}

// NewPlanner creates a planner. refs may be nil; when set, rewrite steps carry
// the current row counts.
func NewPlanner(nodes Reader, refs store.ReferenceRepository, dependents []domain.Dependent) *Planner {
	return &Planner{
		nodes:      nodes,
		refs:       refs,
		dependents: dependents,
		normalize:  paths.NormalizeName,
	}
}

// Plan builds the plan for merging sourceID into targetID.
// It fails with SameNode, NotFound, TypeMismatch, InactiveTarget,
// WouldCreateCycle, or DepthExceeded when a moved subtree would not fit
// under the target.
func (p *Planner) Plan(ctx context.Context, sourceID, targetID string) (*Plan, error) {
	if sourceID == targetID {
		return nil, domain.Errorf(domain.ErrSameNode, sourceID, "source and target are the same node")
	}
	source, err := p.nodes.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := p.nodes.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if source.Type != target.Type {
		return nil, domain.Errorf(domain.ErrTypeMismatch, sourceID, "source type %q, target type %q", source.Type, target.Type)
	}
	if !target.Active {
		return nil, domain.Errorf(domain.ErrInactiveTarget, targetID, "cannot merge into an inactive node")
	}

	nodes, err := p.nodes.ListByType(ctx, source.Type, true)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", source.Type, err)
	}
	ix := tree.Build(nodes)
	if ix.IsDescendant(targetID, sourceID) {
		return nil, domain.Errorf(domain.ErrWouldCreateCycle, sourceID, "target %s is inside the source subtree", targetID)
	}

	return p.build(ctx, ix, *source, *target)
}

func (p *Planner) build(ctx context.Context, ix *tree.Index, source, target domain.Node) (*Plan, error) {
	plan := &Plan{Type: source.Type, Source: source, Target: target}

	targetChildren := ix.Children(target.ID)
	for _, c := range ix.Children(source.ID) {
		if match, ok := p.matchChild(c, source.ID, targetChildren); ok {
			nested, err := p.build(ctx, ix, c, match)
			if err != nil {
				return nil, err
			}
			plan.Items = append(plan.Items, Item{Merge: nested})
			continue
		}

		if deepest := target.Level + 1 + height(ix, c.ID); deepest > domain.MaxLevel {
			return nil, domain.Errorf(domain.ErrDepthExceeded, c.ID, "moving %q under %s would reach level %d", c.Name, target.ID, deepest)
		}
		if delta := target.Level + 1 - c.Level; delta != 0 {
			if err := codeClash(ix, c, delta); err != nil {
				return nil, err
			}
		}
		plan.Items = append(plan.Items, Item{Step: &Step{
			Kind:     StepReparent,
			NodeID:   c.ID,
			TargetID: target.ID,
			Name:     c.Name,
		}})
	}

	for _, dep := range p.dependents {
		step := &Step{Kind: StepRewriteReferences, NodeID: source.ID, TargetID: target.ID, Dependent: dep}
		if p.refs != nil {
			n, err := p.refs.CountReferences(ctx, dep, source.ID)
			if err != nil {
				return nil, err
			}
			step.References = n
		}
		plan.Items = append(plan.Items, Item{Step: step})
	}

	plan.Items = append(plan.Items, Item{Step: &Step{Kind: StepDeactivate, NodeID: source.ID, Name: source.Name}})
	return plan, nil
}

// matchChild finds the target child that c should merge into: same code
// first, then same normalized name. The source itself never matches.
func (p *Planner) matchChild(c domain.Node, sourceID string, candidates []domain.Node) (domain.Node, bool) {
	if c.HasCode() {
		for _, t := range candidates {
			if t.ID != sourceID && t.Code == c.Code {
				return t, true
			}
		}
	}
	key := p.normalize(c.Name)
	for _, t := range candidates {
		if t.ID != sourceID && p.normalize(t.Name) == key {
			return t, true
		}
	}
	return domain.Node{}, false
}

// codeClash rejects a move that shifts a coded node of c's subtree onto a
// level where another active node already holds the same code.
func codeClash(ix *tree.Index, c domain.Node, delta int) error {
	moving := append([]domain.Node{c}, ix.Descendants(c.ID)...)
	inSubtree := make(map[string]bool, len(moving))
	for _, n := range moving {
		inSubtree[n.ID] = true
	}
	for _, m := range moving {
		if !m.HasCode() {
			continue
		}
		for _, other := range ix.Nodes() {
			if other.Active && !inSubtree[other.ID] && other.Code == m.Code && other.Level == m.Level+delta {
				return domain.Errorf(domain.ErrDuplicateCode, m.ID, "code %q already used at level %d by %s", m.Code, m.Level+delta, other.ID)
			}
		}
	}
	return nil
}

// height is the number of levels below id, inactive nodes included, since a
// reparent moves them too. The walk stops past MaxLevel so corrupt cycles end.
func height(ix *tree.Index, id string) int {
	return heightFrom(ix, id, 0)
}

func heightFrom(ix *tree.Index, id string, depth int) int {
	if depth > domain.MaxLevel {
		return depth
	}
	h := 0
	for _, c := range ix.AllChildren(id) {
		if ch := 1 + heightFrom(ix, c.ID, depth+1); ch > h {
			h = ch
		}
	}
	return h
}

// PlanCluster plans every source of a cluster into its survivor. Plans are
// computed against the current store; callers that execute them one by one
// should re-plan after each execution when sources share children.
func (p *Planner) PlanCluster(ctx context.Context, c dedupe.Cluster) ([]*Plan, error) {
	plans := make([]*Plan, 0, len(c.Sources))
	for _, src := range c.Sources {
		plan, err := p.Plan(ctx, src.ID, c.Survivor.ID)
		if err != nil {
			return nil, fmt.Errorf("plan %s into %s: %w", src.ID, c.Survivor.ID, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
