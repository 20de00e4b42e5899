package tree

import (
	"context"
	"fmt"
	"sync"

	"github.com/lherron/cattree/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Loader is the slice of the node store the cache reads from
type Loader interface {
	ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error)
}

// Cache holds one Index per type and rebuilds it on the first read after an
// Invalidate. It is advisory: the store stays the source of truth.
type Cache struct {
	loader Loader

	mu      sync.Mutex
	entries map[string]*Index
	gen     map[string]uint64
	group   singleflight.Group
}

// NewCache creates an empty cache over loader
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[string]*Index),
		gen:     make(map[string]uint64),
	}
}

// Get returns the index for nodeType, scanning the store if needed.
// Concurrent misses for the same type and generation share one scan, so a
// read that starts after Invalidate never joins a scan begun before it. The
// shared scan is detached from any one caller; a cancelled caller returns
// ctx.Err() and the scan carries on for the others.
func (c *Cache) Get(ctx context.Context, nodeType string) (*Index, error) {
	c.mu.Lock()
	if ix, ok := c.entries[nodeType]; ok {
		c.mu.Unlock()
		return ix, nil
	}
	gen := c.gen[nodeType]
	c.mu.Unlock()

	scanCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%s@%d", nodeType, gen), func() (interface{}, error) {
		nodes, err := c.loader.ListByType(scanCtx, nodeType, true)
		if err != nil {
			return nil, err
		}
		ix := Build(nodes)

		c.mu.Lock()
		// a write landed while scanning; serve this result once but do not keep it
		if c.gen[nodeType] == gen {
			c.entries[nodeType] = ix
		}
		c.mu.Unlock()
		return ix, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the index for nodeType. Call after every write to that type.
func (c *Cache) Invalidate(nodeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, nodeType)
	c.gen[nodeType]++
}

// InvalidateAll drops every cached index
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t := range c.gen {
		delete(c.entries, t)
		c.gen[t]++
	}
}
