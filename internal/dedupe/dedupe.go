// Package dedupe finds clusters of category nodes that represent the same
// real-world category and picks the one that survives a merge.
package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/paths"
)

// Member is a cluster node plus the facts a keep-rule ranks on
type Member struct {
	domain.Node
	ActiveChildren int `json:"active_children"`
}

// KeepRule returns the index of the member that survives
type KeepRule func(members []Member) int

// DefaultKeepRule prefers a node with a code, then one with active children,
// then the smallest id.
func DefaultKeepRule(members []Member) int {
	best := 0
	for i := 1; i < len(members); i++ {
		if better(members[i], members[best]) {
			best = i
		}
	}
	return best
}

func better(a, b Member) bool {
	if a.HasCode() != b.HasCode() {
		return a.HasCode()
	}
	if (a.ActiveChildren > 0) != (b.ActiveChildren > 0) {
		return a.ActiveChildren > 0
	}
	return a.ID < b.ID
}

// Cluster is a set of two or more nodes considered duplicates
type Cluster struct {
	Type     string        `json:"type"`
	Key      string        `json:"key"`
	Members  []Member      `json:"members"`
	Survivor domain.Node   `json:"survivor"`
	Sources  []domain.Node `json:"sources"`
}

// Options tunes detection. The zero value runs both passes with
// paths.NormalizeName and DefaultKeepRule.
type Options struct {
	SkipCodePass bool
	SkipNamePass bool
	Normalize    func(string) string
	KeepRule     KeepRule
}

func (o Options) withDefaults() Options {
	if o.Normalize == nil {
		o.Normalize = paths.NormalizeName
	}
	if o.KeepRule == nil {
		o.KeepRule = DefaultKeepRule
	}
	return o
}

// Find clusters the active nodes in nodes. Two passes are unioned by id:
// same type and code, and same type, parent and normalized name. Nodes of
// different types never share a cluster.
func Find(nodes []domain.Node, opts Options) []Cluster {
	opts = opts.withDefaults()

	var active []domain.Node
	childCount := map[string]int{}
	for _, n := range nodes {
		if !n.Active {
			continue
		}
		active = append(active, n)
		if n.ParentID != nil {
			childCount[*n.ParentID]++
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	uf := newUnionFind(len(active))
	keys := make([]map[string]bool, len(active))
	for i := range keys {
		keys[i] = map[string]bool{}
	}

	group := func(keyOf func(n domain.Node) (string, string, bool)) {
		first := map[string]int{}
		for i, n := range active {
			key, label, ok := keyOf(n)
			if !ok {
				continue
			}
			if j, seen := first[key]; seen {
				uf.union(j, i)
				keys[i][label] = true
				keys[j][label] = true
			} else {
				first[key] = i
			}
		}
	}

	if !opts.SkipCodePass {
		group(func(n domain.Node) (string, string, bool) {
			if n.Code == "" {
				return "", "", false
			}
			return n.Type + "\x00" + n.Code, "code:" + n.Code, true
		})
	}
	if !opts.SkipNamePass {
		group(func(n domain.Node) (string, string, bool) {
			name := opts.Normalize(n.Name)
			if name == "" {
				return "", "", false
			}
			return n.Type + "\x00" + n.Parent() + "\x00" + name, "name:" + name, true
		})
	}

	byRoot := map[int][]int{}
	for i := range active {
		r := uf.find(i)
		byRoot[r] = append(byRoot[r], i)
	}

	var clusters []Cluster
	for _, idxs := range byRoot {
		if len(idxs) < 2 {
			continue
		}
		labels := map[string]bool{}
		members := make([]Member, len(idxs))
		for k, i := range idxs {
			members[k] = Member{Node: active[i], ActiveChildren: childCount[active[i].ID]}
			for l := range keys[i] {
				labels[l] = true
			}
		}
		clusters = append(clusters, newCluster(members, labels, opts.KeepRule))
	}

	sort.Slice(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Survivor.Level != b.Survivor.Level {
			return a.Survivor.Level < b.Survivor.Level
		}
		return a.Survivor.ID < b.Survivor.ID
	})
	return clusters
}

func newCluster(members []Member, labels map[string]bool, keep KeepRule) Cluster {
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	keys := make([]string, 0, len(labels))
	for l := range labels {
		keys = append(keys, l)
	}
	sort.Strings(keys)

	survivor := keep(members)
	c := Cluster{
		Type:     members[0].Type,
		Key:      strings.Join(keys, ", "),
		Members:  members,
		Survivor: members[survivor].Node,
	}
	for i, m := range members {
		if i != survivor {
			c.Sources = append(c.Sources, m.Node)
		}
	}
	return c
}

func (c Cluster) String() string {
	names := make([]string, len(c.Members))
	for i, m := range c.Members {
		names[i] = fmt.Sprintf("%s(%s)", m.Name, m.ID)
	}
	return fmt.Sprintf("%s [%s] keep %s: %s", c.Type, c.Key, c.Survivor.ID, strings.Join(names, ", "))
}

// Lister is the slice of the node store the detector reads from
type Lister interface {
	ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error)
}

// Detector runs Find against a store
type Detector struct {
	nodes Lister
	opts  Options
}

// NewDetector creates a detector over nodes
func NewDetector(nodes Lister, opts Options) *Detector {
	return &Detector{nodes: nodes, opts: opts}
}

// FindDuplicates scans nodeType and returns its clusters
func (d *Detector) FindDuplicates(ctx context.Context, nodeType string) ([]Cluster, error) {
	nodes, err := d.nodes.ListByType(ctx, nodeType, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", nodeType, err)
	}
	return Find(nodes, d.opts), nil
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	// keep the smaller index as root so results stay deterministic
	if rb < ra {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
}
