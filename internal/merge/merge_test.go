package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lherron/cattree/internal/dedupe"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/lock"
	"github.com/lherron/cattree/internal/store"
	"github.com/lherron/cattree/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseType = "receitas_-_base"

var recipeDep = domain.Dependent{Collection: "Recipe", Field: "category_id"}

type env struct {
	t    *testing.T
	mem  *store.Memory
	plan *Planner
	exec *Executor
}

func newEnv(t *testing.T, opts ...Option) *env {
	mem := store.NewMemory(store.Options{})
	return &env{
		t:    t,
		mem:  mem,
		plan: NewPlanner(mem.Nodes, mem.Refs, mem.Dependents()),
		exec: NewExecutor(mem.Nodes, mem.Refs, opts...),
	}
}

func (e *env) create(name, code string, parent *domain.Node) *domain.Node {
	e.t.Helper()
	p := store.CreateParams{Type: baseType, Name: name, Code: code}
	if parent != nil {
		p.ParentID = &parent.ID
	}
	n, err := e.mem.Nodes.Create(context.Background(), "test", p)
	require.NoError(e.t, err)
	return n
}

func (e *env) get(id string) *domain.Node {
	e.t.Helper()
	n, err := e.mem.Nodes.Get(context.Background(), id)
	require.NoError(e.t, err)
	return n
}

func kinds(steps []Step) []StepKind {
	out := make([]StepKind, len(steps))
	for i, s := range steps {
		out[i] = s.Kind
	}
	return out
}

func TestPlan_ReparentRewriteDeactivate(t *testing.T) {
	e := newEnv(t)
	source := e.create("ROTISSERIA", "", nil)
	child := e.create("PRODUCAO - ROTISSERIA", "", source)
	target := e.create("Rotisseria", "017", nil)

	plan, err := e.plan.Plan(context.Background(), source.ID, target.ID)
	require.NoError(t, err)

	steps := plan.Steps()
	assert.Equal(t, []StepKind{StepReparent, StepRewriteReferences, StepRewriteReferences, StepDeactivate}, kinds(steps))
	assert.Equal(t, child.ID, steps[0].NodeID)
	assert.Equal(t, target.ID, steps[0].TargetID)
	assert.Equal(t, recipeDep, steps[1].Dependent)
	assert.Equal(t, source.ID, steps[1].NodeID)
	assert.Equal(t, target.ID, steps[1].TargetID)
	assert.Equal(t, source.ID, steps[3].NodeID)
	assert.Contains(t, plan.String(), `reparent "PRODUCAO - ROTISSERIA"`)
}

func TestPlan_NestedMergeForMatchingChild(t *testing.T) {
	e := newEnv(t)
	source := e.create("ROTISSERIA", "", nil)
	srcChild := e.create("PRODUCAO - ROTISSERIA", "", source)
	grandchild := e.create("Frangos", "", srcChild)
	other := e.create("Assados", "", source)
	target := e.create("Rotisseria", "017", nil)
	tgtChild := e.create("Produção - Rotisseria", "", target)

	plan, err := e.plan.Plan(context.Background(), source.ID, target.ID)
	require.NoError(t, err)
	require.Len(t, plan.Items, 5)
	require.NotNil(t, plan.Items[0].Merge)
	nested := plan.Items[0].Merge
	assert.Equal(t, srcChild.ID, nested.Source.ID)
	assert.Equal(t, tgtChild.ID, nested.Target.ID)

	steps := plan.Steps()
	require.Len(t, steps, 8)
	// nested merge first: grandchild moves, child refs rewritten, child deactivated
	assert.Equal(t, StepReparent, steps[0].Kind)
	assert.Equal(t, grandchild.ID, steps[0].NodeID)
	assert.Equal(t, tgtChild.ID, steps[0].TargetID)
	assert.Equal(t, StepDeactivate, steps[3].Kind)
	assert.Equal(t, srcChild.ID, steps[3].NodeID)
	// then the unmatched sibling and the outer merge
	assert.Equal(t, StepReparent, steps[4].Kind)
	assert.Equal(t, other.ID, steps[4].NodeID)
	assert.Equal(t, StepDeactivate, steps[7].Kind)
	assert.Equal(t, source.ID, steps[7].NodeID)
}

func TestPlan_MatchesChildByCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	// source at level 1, target at level 2: their children sit on different
	// levels and may share a code
	source := e.create("Carnes", "", nil)
	srcChild := e.create("Bovinos", "017.001", source)
	root := e.create("Açougue", "", nil)
	target := e.create("Carnes", "", root)
	tgtChild := e.create("Carne Bovina", "017.001", target)

	plan, err := e.plan.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)
	require.NotNil(t, plan.Items[0].Merge)
	assert.Equal(t, srcChild.ID, plan.Items[0].Merge.Source.ID)
	assert.Equal(t, tgtChild.ID, plan.Items[0].Merge.Target.ID)
}

func TestPlan_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	root := e.create("Raiz", "", nil)
	child := e.create("Filho", "", root)
	e.create("Neto", "", child)
	other := e.create("Outra", "", nil)
	shallow := e.create("Rasa", "", other)
	gone := e.create("Antiga", "", nil)
	off := false
	_, err := e.mem.Nodes.Update(ctx, "test", gone.ID, store.UpdateParams{Active: &off})
	require.NoError(t, err)
	foreign, err := e.mem.Nodes.Create(ctx, "test", store.CreateParams{Type: "contas", Name: "Raiz"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		source string
		target string
		want   error
	}{
		{name: "same node", source: root.ID, target: root.ID, want: domain.ErrSameNode},
		{name: "type mismatch", source: root.ID, target: foreign.ID, want: domain.ErrTypeMismatch},
		{name: "target below source", source: root.ID, target: child.ID, want: domain.ErrWouldCreateCycle},
		{name: "inactive target", source: other.ID, target: gone.ID, want: domain.ErrInactiveTarget},
		{name: "subtree too deep", source: root.ID, target: shallow.ID, want: domain.ErrDepthExceeded},
		{name: "missing source", source: "nope", target: root.ID, want: domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.plan.Plan(ctx, tt.source, tt.target)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPlan_DoesNotWrite(t *testing.T) {
	e := newEnv(t)
	source := e.create("A", "", nil)
	e.create("A1", "", source)
	target := e.create("B", "", nil)
	before := len(e.mem.Events())

	_, err := e.plan.Plan(context.Background(), source.ID, target.ID)
	require.NoError(t, err)
	assert.Len(t, e.mem.Events(), before)
}

func TestExecute_NoOrphansAndReferencesMoved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	source := e.create("ROTISSERIA", "", nil)
	child := e.create("PRODUCAO - ROTISSERIA", "", source)
	target := e.create("Rotisseria", "017", nil)
	for i := 0; i < 10; i++ {
		e.mem.AddReference(recipeDep, fmt.Sprintf("r%d", i), source.ID)
	}

	plan, err := e.plan.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)
	res, err := e.exec.Execute(ctx, plan)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, 1, res.Skipped) // no Ingredient rows
	assert.EqualValues(t, 10, res.RewrittenRefs)

	assert.False(t, e.get(source.ID).Active)
	moved := e.get(child.ID)
	assert.Equal(t, target.ID, moved.Parent())
	assert.Equal(t, 2, moved.Level)

	all, err := e.mem.Nodes.ListByType(ctx, baseType, false)
	require.NoError(t, err)
	for _, n := range all {
		assert.NotEqual(t, source.ID, n.Parent(), "active node %s still under source", n.ID)
	}

	left, _ := e.mem.Refs.CountReferences(ctx, recipeDep, source.ID)
	assert.Zero(t, left)
	now, _ := e.mem.Refs.CountReferences(ctx, recipeDep, target.ID)
	assert.Equal(t, 10, now)
}

func TestExecute_SecondRunWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	source := e.create("A", "", nil)
	e.create("A1", "", source)
	target := e.create("B", "", nil)

	plan, err := e.plan.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)
	_, err = e.exec.Execute(ctx, plan)
	require.NoError(t, err)

	events := len(e.mem.Events())
	res, err := e.exec.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Zero(t, res.Writes)
	assert.Equal(t, len(plan.Steps()), res.Skipped)
	assert.Len(t, e.mem.Events(), events)
}

func TestExecute_PartialFailureResumes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	source := e.create("ROTISSERIA", "", nil)
	child := e.create("PRODUCAO - ROTISSERIA", "", source)
	target := e.create("Rotisseria", "017", nil)
	for i := 0; i < 600; i++ {
		e.mem.AddReference(recipeDep, fmt.Sprintf("r%03d", i), source.ID)
	}

	plan, err := e.plan.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)

	batches := 0
	e.mem.FailHook = func(op, id string) error {
		if op == "rewrite" {
			batches++
			if batches == 2 {
				return errors.New("connection reset")
			}
		}
		return nil
	}

	_, err = e.exec.Execute(ctx, plan)
	require.Error(t, err)
	require.True(t, IsPartialFailure(err))

	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Len(t, pf.Committed, 1)
	assert.Equal(t, child.ID, pf.Committed[0].Step.NodeID)
	require.NotNil(t, pf.Failed)
	assert.Equal(t, StepRewriteReferences, pf.Failed.Kind)
	assert.Equal(t, []StepKind{StepRewriteReferences, StepDeactivate}, kinds(pf.Pending))
	assert.Contains(t, err.Error(), "connection reset")

	assert.True(t, e.get(source.ID).Active, "source must stay active until its step runs")
	left, _ := e.mem.Refs.CountReferences(ctx, recipeDep, source.ID)
	assert.Equal(t, 200, left)

	e.mem.FailHook = nil
	res, err := e.exec.Execute(ctx, plan)
	require.NoError(t, err)
	assert.EqualValues(t, 200, res.RewrittenRefs)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 2, res.Skipped)

	left, _ = e.mem.Refs.CountReferences(ctx, recipeDep, source.ID)
	assert.Zero(t, left)
	moved, _ := e.mem.Refs.CountReferences(ctx, recipeDep, target.ID)
	assert.Equal(t, 600, moved)
	assert.False(t, e.get(source.ID).Active)
}

func TestExecute_CancelledBeforeFirstStep(t *testing.T) {
	e := newEnv(t)
	source := e.create("A", "", nil)
	target := e.create("B", "", nil)

	plan, err := e.plan.Plan(context.Background(), source.ID, target.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.exec.Execute(ctx, plan)

	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Nil(t, pf.Failed)
	assert.Len(t, pf.Pending, len(plan.Steps()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Writes)
	assert.True(t, e.get(source.ID).Active)
}

func TestExecute_DeactivateRefusesNewChildren(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	source := e.create("A", "", nil)
	target := e.create("B", "", nil)

	plan, err := e.plan.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)

	// a child added after planning is not in the plan
	late := e.create("Late", "", source)

	_, err = e.exec.Execute(ctx, plan)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.ErrorIs(t, err, domain.ErrHasChildren)
	assert.Equal(t, source.ID, e.get(late.ID).Parent())
}

type recordingCache struct{ types []string }

func (c *recordingCache) Invalidate(nodeType string) { c.types = append(c.types, nodeType) }

func TestExecute_InvalidatesCacheOnWrites(t *testing.T) {
	cache := &recordingCache{}
	e := newEnv(t, WithCache(cache), WithActor("admin"))
	ctx := context.Background()
	source := e.create("A", "", nil)
	target := e.create("B", "", nil)

	plan, err := e.plan.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)
	_, err = e.exec.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{baseType}, cache.types)

	_, err = e.exec.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Len(t, cache.types, 1, "no-op run must not invalidate")

	last := e.mem.Events()[len(e.mem.Events())-1]
	require.NotNil(t, last.Actor)
	assert.Equal(t, "admin", *last.Actor)
}

func TestExecute_SerializedPerType(t *testing.T) {
	locker := lock.NewLocal()
	e := newEnv(t, WithLocker(locker))
	source := e.create("A", "", nil)
	target := e.create("B", "", nil)

	plan, err := e.plan.Plan(context.Background(), source.ID, target.ID)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), lock.TypeKey(baseType))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.exec.Execute(ctx, plan)
	require.Error(t, err)
	assert.False(t, IsPartialFailure(err))
	assert.True(t, e.get(source.ID).Active)

	release()
	_, err = e.exec.Execute(context.Background(), plan)
	require.NoError(t, err)
}

func TestExecute_SQLite600Recipes(t *testing.T) {
	database, _ := testutil.TempDB(t)
	s := store.New(database, store.Options{})
	ctx := context.Background()

	source, err := s.Nodes.Create(ctx, "test", store.CreateParams{Type: baseType, Name: "ROTISSERIA"})
	require.NoError(t, err)
	child, err := s.Nodes.Create(ctx, "test", store.CreateParams{Type: baseType, Name: "PRODUCAO - ROTISSERIA", ParentID: &source.ID})
	require.NoError(t, err)
	target, err := s.Nodes.Create(ctx, "test", store.CreateParams{Type: baseType, Name: "Rotisseria", Code: "017"})
	require.NoError(t, err)
	testutil.InsertRefs(t, database, "Recipe", source.ID, 600)

	planner := NewPlanner(s.Nodes, s.Refs, s.Dependents())
	plan, err := planner.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 600, plan.Steps()[1].References)

	res, err := NewExecutor(s.Nodes, s.Refs).Execute(ctx, plan)
	require.NoError(t, err)
	assert.EqualValues(t, 600, res.RewrittenRefs)

	assert.Zero(t, testutil.CountRows(t, database, "Recipe", source.ID))
	assert.Equal(t, 600, testutil.CountRows(t, database, "Recipe", target.ID))

	got, err := s.Nodes.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, got.Parent())

	src, err := s.Nodes.Get(ctx, source.ID)
	require.NoError(t, err)
	assert.False(t, src.Active)

	again, err := NewExecutor(s.Nodes, s.Refs).Execute(ctx, plan)
	require.NoError(t, err)
	assert.Zero(t, again.Writes)
}

func TestPlanCluster(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create("ROTISSERIA", "", nil)
	b := e.create("Rotisseria", "017", nil)
	c := e.create("rotisséria", "", nil)

	all, err := e.mem.Nodes.ListByType(ctx, baseType, false)
	require.NoError(t, err)
	clusters := dedupe.Find(all, dedupe.Options{})
	require.Len(t, clusters, 1)
	require.Equal(t, b.ID, clusters[0].Survivor.ID)

	plans, err := e.plan.PlanCluster(ctx, clusters[0])
	require.NoError(t, err)
	require.Len(t, plans, 2)
	sources := []string{plans[0].Source.ID, plans[1].Source.ID}
	assert.ElementsMatch(t, []string{a.ID, c.ID}, sources)
	for _, p := range plans {
		assert.Equal(t, b.ID, p.Target.ID)
	}
}

func TestSimulate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	source := e.create("ROTISSERIA", "", nil)
	e.create("PRODUCAO - ROTISSERIA", "", source)
	target := e.create("Rotisseria", "017", nil)

	plan, err := e.plan.Plan(ctx, source.ID, target.ID)
	require.NoError(t, err)
	nodes, err := e.mem.Nodes.ListByType(ctx, baseType, true)
	require.NoError(t, err)

	preview, err := Simulate(ctx, plan, nodes)
	require.NoError(t, err)
	assert.Contains(t, preview.Diff, "+ROTISSERIA (inactive)")
	assert.Contains(t, preview.After, "Rotisseria [017]\n└── PRODUCAO - ROTISSERIA\n")

	// the store itself is untouched
	assert.True(t, e.get(source.ID).Active)
}
