// Package catalog is the editing surface over one store: every write goes to
// the node repository and drops the affected type's cached tree, every read
// is served from the cached tree.
package catalog

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/lherron/cattree/internal/bulk"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/paths"
	"github.com/lherron/cattree/internal/selectors"
	"github.com/lherron/cattree/internal/store"
	"github.com/lherron/cattree/internal/tree"
)

// Catalog edits and browses category trees
type Catalog struct {
	nodes store.NodeRepository
	cache *tree.Cache
	actor string
}

// New creates a catalog. cache may be shared with a merge executor.
func New(nodes store.NodeRepository, cache *tree.Cache, actor string) *Catalog {
	if cache == nil {
		cache = tree.NewCache(nodes)
	}
	return &Catalog{nodes: nodes, cache: cache, actor: actor}
}

// Cache returns the tree cache the catalog reads from
func (c *Catalog) Cache() *tree.Cache {
	return c.cache
}

// Create adds a root node of nodeType
func (c *Catalog) Create(ctx context.Context, nodeType, name, code string) (*domain.Node, error) {
	n, err := c.nodes.Create(ctx, c.actor, store.CreateParams{Type: nodeType, Name: name, Code: code})
	if err != nil {
		return nil, err
	}
	c.cache.Invalidate(nodeType)
	return n, nil
}

// CreateUnder adds a child of parentID in the parent's type
func (c *Catalog) CreateUnder(ctx context.Context, parentID, name, code string) (*domain.Node, error) {
	parent, err := c.nodes.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	n, err := c.nodes.Create(ctx, c.actor, store.CreateParams{
		Type:     parent.Type,
		Name:     name,
		Code:     code,
		ParentID: &parent.ID,
	})
	if err != nil {
		return nil, err
	}
	c.cache.Invalidate(n.Type)
	return n, nil
}

// Get returns a node straight from the store
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Node, error) {
	return c.nodes.Get(ctx, id)
}

func (c *Catalog) update(ctx context.Context, id string, params store.UpdateParams) (*domain.Node, error) {
	n, err := c.nodes.Update(ctx, c.actor, id, params)
	if err != nil {
		return nil, err
	}
	c.cache.Invalidate(n.Type)
	return n, nil
}

// Rename changes a node's display name. ifMatch of 0 skips the etag check.
func (c *Catalog) Rename(ctx context.Context, id, name string, ifMatch int64) (*domain.Node, error) {
	return c.update(ctx, id, store.UpdateParams{Name: &name, IfMatch: ifMatch})
}

// SetCode replaces a node's external code; "" clears it
func (c *Catalog) SetCode(ctx context.Context, id, code string, ifMatch int64) (*domain.Node, error) {
	return c.update(ctx, id, store.UpdateParams{Code: &code, IfMatch: ifMatch})
}

// Move reparents a node with its subtree. An empty parentID promotes it to a root.
func (c *Catalog) Move(ctx context.Context, id, parentID string, ifMatch int64) (*domain.Node, error) {
	change := &store.ParentChange{}
	if parentID != "" {
		change.ParentID = &parentID
	}
	return c.update(ctx, id, store.UpdateParams{Parent: change, IfMatch: ifMatch})
}

// Reorder sets a node's position among its siblings
func (c *Catalog) Reorder(ctx context.Context, id string, order int) (*domain.Node, error) {
	return c.update(ctx, id, store.UpdateParams{Order: &order})
}

// Activate marks a node active again; its parent must be active
func (c *Catalog) Activate(ctx context.Context, id string) (*domain.Node, error) {
	on := true
	return c.update(ctx, id, store.UpdateParams{Active: &on})
}

// Deactivate hides a node; it must have no active children
func (c *Catalog) Deactivate(ctx context.Context, id string) (*domain.Node, error) {
	off := false
	return c.update(ctx, id, store.UpdateParams{Active: &off})
}

// Delete removes a node that has no children and no references
func (c *Catalog) Delete(ctx context.Context, id string) error {
	n, err := c.nodes.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.nodes.Delete(ctx, c.actor, id); err != nil {
		return err
	}
	c.cache.Invalidate(n.Type)
	return nil
}

// Retype moves a root and its subtree into another type
func (c *Catalog) Retype(ctx context.Context, rootID, newType string) (int, error) {
	n, err := c.nodes.Get(ctx, rootID)
	if err != nil {
		return 0, err
	}
	moved, err := c.nodes.Retype(ctx, c.actor, rootID, newType)
	if err != nil {
		return 0, err
	}
	c.cache.Invalidate(n.Type)
	c.cache.Invalidate(newType)
	return moved, nil
}

// Tree returns the cached index for nodeType
func (c *Catalog) Tree(ctx context.Context, nodeType string) (*tree.Index, error) {
	return c.cache.Get(ctx, nodeType)
}

// Roots returns the active roots of nodeType in display order
func (c *Catalog) Roots(ctx context.Context, nodeType string) ([]domain.Node, error) {
	ix, err := c.cache.Get(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	return ix.Roots(), nil
}

func (c *Catalog) indexOf(ctx context.Context, id string) (*tree.Index, error) {
	n, err := c.nodes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.cache.Get(ctx, n.Type)
}

// Children returns the active children of id in display order
func (c *Catalog) Children(ctx context.Context, id string) ([]domain.Node, error) {
	ix, err := c.indexOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return ix.Children(id), nil
}

// Path returns the nodes from the root down to id
func (c *Catalog) Path(ctx context.Context, id string) ([]domain.Node, error) {
	ix, err := c.indexOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return ix.Path(id)
}

// Match returns the nodes of nodeType, inactive included, whose name path
// matches pattern ("rotisseria/**", "*/obsoleto*"), deepest first.
func (c *Catalog) Match(ctx context.Context, nodeType, pattern string) ([]domain.Node, error) {
	ix, err := c.cache.Get(ctx, nodeType)
	if err != nil {
		return nil, err
	}
	var out []domain.Node
	for _, n := range ix.Nodes() {
		names, err := ix.PathNames(n.ID)
		if err != nil {
			continue
		}
		if paths.MatchNodePath(pattern, names) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out, nil
}

// DeleteMatching deletes every node Match returns, children before parents,
// and halts at the first node the store refuses (children left behind,
// references). Progress lines go to out when it is non-nil.
func (c *Catalog) DeleteMatching(ctx context.Context, nodeType, pattern string, out io.Writer) (*bulk.Result, error) {
	matched, err := c.Match(ctx, nodeType, pattern)
	if err != nil {
		return nil, err
	}
	ix, err := c.cache.Get(ctx, nodeType)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(matched))
	for i, n := range matched {
		ids[i] = n.ID
	}
	op := &bulk.Operation{
		Ordered: true,
		Out:     out,
		Label: func(id string) string {
			names, err := ix.PathNames(id)
			if err != nil {
				return id
			}
			return paths.JoinPath(names...)
		},
	}

	result := op.Execute(ctx, ids, func(ctx context.Context, id string) error {
		return c.nodes.Delete(ctx, c.actor, id)
	})
	if result.Succeeded > 0 {
		c.cache.Invalidate(nodeType)
	}
	if err := result.Err(); err != nil {
		return result, fmt.Errorf("delete matching %q: %w", pattern, err)
	}
	return result, nil
}

// Resolve returns the node named by a selector: an id, or a typed name path
// such as "receitas:Guarnição/Arroz".
func (c *Catalog) Resolve(ctx context.Context, selector string) (*domain.Node, error) {
	return selectors.Resolve(ctx, c, c, selector)
}
