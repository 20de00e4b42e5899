package tree

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lherron/cattree/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, name string, level int, parent string, order int) domain.Node {
	n := domain.Node{ID: id, Name: name, Type: "receitas", Level: level, Order: order, Active: true}
	if parent != "" {
		p := parent
		n.ParentID = &p
	}
	return n
}

func sample() []domain.Node {
	inactive := node("c3", "Antigo", 2, "r1", 0)
	inactive.Active = false
	return []domain.Node{
		node("r2", "Padaria", 1, "", 1),
		node("r1", "Rotisseria", 1, "", 0),
		node("c2", "Frangos", 2, "r1", 5),
		node("c1", "Assados", 2, "r1", 5),
		inactive,
		node("g1", "Inteiro", 3, "c2", 0),
	}
}

func ids(nodes []domain.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestIndex_RootsAndChildren(t *testing.T) {
	ix := Build(sample())

	assert.Equal(t, []string{"r1", "r2"}, ids(ix.Roots()))
	// same order, so name breaks the tie; inactive c3 is hidden
	assert.Equal(t, []string{"c1", "c2"}, ids(ix.Children("r1")))
	assert.Equal(t, []string{"c3", "c1", "c2"}, ids(ix.AllChildren("r1")))
	assert.Empty(t, ix.Children("g1"))
	assert.Equal(t, 6, ix.Len())
}

func TestIndex_ChildCreatedUnderRoot(t *testing.T) {
	nodes := []domain.Node{
		{ID: "root", Name: "Rotisseria", Type: "receitas_-_base", Level: 1, Active: true},
	}
	child := domain.Node{ID: "child", Name: "PRODUCAO - ROTISSERIA", Type: "receitas_-_base", Level: 2, Active: true}
	parent := "root"
	child.ParentID = &parent
	nodes = append(nodes, child)

	children := Build(nodes).Children("root")
	require.Len(t, children, 1)
	assert.Equal(t, 2, children[0].Level)
}

func TestIndex_Path(t *testing.T) {
	ix := Build(sample())

	path, err := ix.Path("g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "c2", "g1"}, ids(path))

	names, err := ix.PathNames("g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Rotisseria", "Frangos", "Inteiro"}, names)

	_, err = ix.Path("missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestIndex_DescendantsAndIsDescendant(t *testing.T) {
	ix := Build(sample())

	assert.Equal(t, []string{"c1", "c2", "g1"}, ids(ix.Descendants("r1")))
	assert.True(t, ix.IsDescendant("g1", "r1"))
	assert.True(t, ix.IsDescendant("c3", "r1"))
	assert.False(t, ix.IsDescendant("r1", "g1"))
	assert.False(t, ix.IsDescendant("r1", "r1"))
	assert.False(t, ix.IsDescendant("g1", "r2"))
}

func TestIndex_ValidateClean(t *testing.T) {
	assert.Empty(t, Build(sample()).Validate())
}

func TestIndex_ValidateReportsCorruption(t *testing.T) {
	orphan := node("o1", "Orfão", 2, "gone", 0)
	wrongLevel := node("w1", "Errado", 3, "r1", 0)
	deep := node("d1", "Fundo", 4, "g1", 0)
	foreign := node("f1", "Outro", 2, "r1", 0)
	foreign.Type = "contas"
	rootLevel := node("x1", "Raiz", 2, "", 0)
	loopA := node("la", "A", 2, "lb", 0)
	loopB := node("lb", "B", 3, "la", 0)

	nodes := append(sample(), orphan, wrongLevel, deep, foreign, rootLevel, loopA, loopB)
	violations := Build(nodes).Validate()

	kinds := map[string][]ViolationKind{}
	for _, v := range violations {
		kinds[v.NodeID] = append(kinds[v.NodeID], v.Kind)
	}

	assert.Equal(t, []ViolationKind{OrphanParent}, kinds["o1"])
	assert.Equal(t, []ViolationKind{LevelMismatch}, kinds["w1"])
	assert.Contains(t, kinds["d1"], DepthExceeded)
	assert.Equal(t, []ViolationKind{TypeMismatch}, kinds["f1"])
	assert.Equal(t, []ViolationKind{LevelMismatch}, kinds["x1"])
	assert.Contains(t, kinds["la"], CycleDetected)
	assert.Contains(t, kinds["lb"], CycleDetected)
	assert.NotContains(t, kinds, "r1")

	for _, v := range violations {
		assert.Error(t, v.Err())
	}
	assert.True(t, errors.Is(Violation{Kind: OrphanParent, NodeID: "o1"}.Err(), domain.ErrOrphanParent))
}

type countingLoader struct {
	nodes []domain.Node
	calls int32
}

func (l *countingLoader) ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error) {
	atomic.AddInt32(&l.calls, 1)
	return l.nodes, nil
}

func TestCache_LazyRebuild(t *testing.T) {
	loader := &countingLoader{nodes: sample()}
	cache := NewCache(loader)
	ctx := context.Background()

	ix1, err := cache.Get(ctx, "receitas")
	require.NoError(t, err)
	ix2, err := cache.Get(ctx, "receitas")
	require.NoError(t, err)
	assert.Same(t, ix1, ix2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&loader.calls))

	loader.nodes = loader.nodes[:2]
	cache.Invalidate("receitas")
	ix3, err := cache.Get(ctx, "receitas")
	require.NoError(t, err)
	assert.Equal(t, 2, ix3.Len())
	assert.EqualValues(t, 2, atomic.LoadInt32(&loader.calls))

	cache.InvalidateAll()
	_, err = cache.Get(ctx, "receitas")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&loader.calls))
}

// gatedLoader blocks its first scan until gate is closed and returns
// ctx.Err() from any scan whose context was cancelled meanwhile.
type gatedLoader struct {
	mu      sync.Mutex
	nodes   []domain.Node
	calls   int
	started chan struct{}
	gate    chan struct{}
}

func newGatedLoader(nodes []domain.Node) *gatedLoader {
	return &gatedLoader{nodes: nodes, started: make(chan struct{}), gate: make(chan struct{})}
}

func (l *gatedLoader) set(nodes []domain.Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nodes = nodes
}

func (l *gatedLoader) ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error) {
	l.mu.Lock()
	l.calls++
	first := l.calls == 1
	snapshot := l.nodes
	l.mu.Unlock()

	if first {
		close(l.started)
		<-l.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

type getResult struct {
	ix  *Index
	err error
}

func getAsync(cache *Cache, ctx context.Context) <-chan getResult {
	out := make(chan getResult, 1)
	go func() {
		ix, err := cache.Get(ctx, "receitas")
		out <- getResult{ix, err}
	}()
	return out
}

func TestCache_ReadAfterInvalidateSkipsInflightScan(t *testing.T) {
	loader := newGatedLoader(nil)
	cache := NewCache(loader)
	ctx := context.Background()

	before := getAsync(cache, ctx)
	<-loader.started

	loader.set(sample())
	cache.Invalidate("receitas")

	after := getAsync(cache, ctx)
	select {
	case res := <-after:
		require.NoError(t, res.err)
		assert.Equal(t, len(sample()), res.ix.Len())
	case <-time.After(2 * time.Second):
		t.Fatal("read after invalidate waited on the earlier scan")
	}

	close(loader.gate)
	res := <-before
	require.NoError(t, res.err)
	assert.Zero(t, res.ix.Len())

	// the stale scan finished last but must not have replaced the fresh index
	ix, err := cache.Get(ctx, "receitas")
	require.NoError(t, err)
	assert.Equal(t, len(sample()), ix.Len())
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	loader := newGatedLoader(sample())
	cache := NewCache(loader)

	cancelCtx, cancel := context.WithCancel(context.Background())
	first := getAsync(cache, cancelCtx)
	<-loader.started
	second := getAsync(cache, context.Background())

	cancel()
	res := <-first
	assert.ErrorIs(t, res.err, context.Canceled)

	close(loader.gate)
	res = <-second
	require.NoError(t, res.err)
	assert.Equal(t, len(sample()), res.ix.Len())
}

func TestRender(t *testing.T) {
	got := RenderString(Build(sample()), RenderOptions{})
	want := "Rotisseria\n" +
		"├── Assados\n" +
		"└── Frangos\n" +
		"    └── Inteiro\n" +
		"Padaria\n"
	assert.Equal(t, want, got)

	withInactive := RenderString(Build(sample()), RenderOptions{ShowInactive: true})
	assert.Contains(t, withInactive, "├── Antigo (inactive)")
}
