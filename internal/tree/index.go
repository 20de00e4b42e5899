// Package tree builds a read-only index over one type's nodes for traversal,
// path lookup and integrity checks.
package tree

import (
	"sort"

	"github.com/lherron/cattree/internal/domain"
)

// Index is an immutable view of a node set. Build it from a full scan of a
// type; it is never written back to the store.
type Index struct {
	nodes    map[string]domain.Node
	children map[string][]string // parent id ("" for roots) -> child ids, sorted
}

// Build indexes nodes in one pass. Inactive nodes are kept so that Validate
// and AllChildren can see them.
func Build(nodes []domain.Node) *Index {
	ix := &Index{
		nodes:    make(map[string]domain.Node, len(nodes)),
		children: make(map[string][]string),
	}
	for _, n := range nodes {
		ix.nodes[n.ID] = n
		ix.children[n.Parent()] = append(ix.children[n.Parent()], n.ID)
	}
	for parent := range ix.children {
		ids := ix.children[parent]
		sort.Slice(ids, func(i, j int) bool {
			return less(ix.nodes[ids[i]], ix.nodes[ids[j]])
		})
	}
	return ix
}

// less orders siblings by Order, then Name, then ID
func less(a, b domain.Node) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// Len returns the number of indexed nodes
func (ix *Index) Len() int {
	return len(ix.nodes)
}

// Get returns the node with id
func (ix *Index) Get(id string) (domain.Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Nodes returns every indexed node ordered by level, then sibling order
func (ix *Index) Nodes() []domain.Node {
	out := make([]domain.Node, 0, len(ix.nodes))
	for _, n := range ix.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return less(out[i], out[j])
	})
	return out
}

func (ix *Index) collect(parent string, includeInactive bool) []domain.Node {
	ids := ix.children[parent]
	out := make([]domain.Node, 0, len(ids))
	for _, id := range ids {
		n := ix.nodes[id]
		if includeInactive || n.Active {
			out = append(out, n)
		}
	}
	return out
}

// Roots returns active level 1 nodes
func (ix *Index) Roots() []domain.Node {
	return ix.collect("", false)
}

// Children returns the active children of id
func (ix *Index) Children(id string) []domain.Node {
	if id == "" {
		return nil
	}
	return ix.collect(id, false)
}

// AllChildren returns the children of id including inactive ones
func (ix *Index) AllChildren(id string) []domain.Node {
	if id == "" {
		return nil
	}
	return ix.collect(id, true)
}

// Path returns the chain from the root down to id.
// It fails with NotFound, OrphanParent or CycleDetected on broken data.
func (ix *Index) Path(id string) ([]domain.Node, error) {
	n, ok := ix.nodes[id]
	if !ok {
		return nil, domain.NotFound("node", id)
	}

	chain := []domain.Node{n}
	seen := map[string]bool{id: true}
	for n.ParentID != nil {
		parent, ok := ix.nodes[*n.ParentID]
		if !ok {
			return nil, domain.Errorf(domain.ErrOrphanParent, n.ID, "parent %s missing", *n.ParentID)
		}
		if seen[parent.ID] {
			return nil, domain.Errorf(domain.ErrCycleDetected, id, "revisited %s", parent.ID)
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		n = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// PathNames returns the names along Path(id)
func (ix *Index) PathNames(id string) ([]string, error) {
	chain, err := ix.Path(id)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(chain))
	for i, n := range chain {
		names[i] = n.Name
	}
	return names, nil
}

// Descendants returns the active nodes below id, depth-first in sibling order.
func (ix *Index) Descendants(id string) []domain.Node {
	var out []domain.Node
	seen := map[string]bool{id: true}
	var walk func(string)
	walk = func(pid string) {
		for _, c := range ix.Children(pid) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			walk(c.ID)
		}
	}
	walk(id)
	return out
}

// IsDescendant reports whether id sits anywhere below ancestorID, following
// parent links regardless of the active flag.
func (ix *Index) IsDescendant(id, ancestorID string) bool {
	seen := map[string]bool{}
	n, ok := ix.nodes[id]
	for ok && n.ParentID != nil && !seen[n.ID] {
		seen[n.ID] = true
		if *n.ParentID == ancestorID {
			return true
		}
		n, ok = ix.nodes[*n.ParentID]
	}
	return false
}
