package snapshot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/store"
)

// NodeLister is the slice of the node store Export reads
type NodeLister interface {
	ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error)
}

// Export reads the selected types and their nodes into a snapshot with its
// snapshot_rev set.
func Export(ctx context.Context, types store.TypeRepository, nodes NodeLister, opts ExportOptions) (*Snapshot, error) {
	all, err := types.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list types: %w", err)
	}

	wanted := map[string]bool{}
	for _, k := range opts.Types {
		wanted[k] = true
	}
	for k := range wanted {
		if !containsType(all, k) {
			return nil, domain.NotFound("type", k)
		}
	}

	snap := &Snapshot{
		Meta:  Meta{SchemaVersion: SchemaVersion},
		Types: map[string]TypeEntry{},
		Nodes: map[string]NodeEntry{},
	}
	for _, t := range all {
		if len(wanted) > 0 && !wanted[t.Key] {
			continue
		}
		snap.Types[t.Key] = TypeEntry{Key: t.Key, Label: t.Label, Order: t.Order, IsSystem: t.IsSystem}

		list, err := nodes.ListByType(ctx, t.Key, opts.IncludeInactive)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", t.Key, err)
		}
		for _, n := range list {
			snap.Nodes[n.ID] = nodeEntry(n)
		}
	}

	rev, err := ComputeSnapshotRev(snap)
	if err != nil {
		return nil, err
	}
	snap.Meta.SnapshotRev = rev
	snap.Meta.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	return snap, nil
}

// Write encodes snap to w
func Write(w io.Writer, snap *Snapshot, canonical bool) error {
	var (
		data []byte
		err  error
	)
	if canonical {
		data, err = CanonicalJSON(snap)
		data = append(data, '\n')
	} else {
		data, err = PrettyJSON(snap)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func containsType(types []domain.CategoryType, key string) bool {
	for _, t := range types {
		if t.Key == key {
			return true
		}
	}
	return false
}

func nodeEntry(n domain.Node) NodeEntry {
	e := NodeEntry{
		ID:     n.ID,
		Type:   n.Type,
		Name:   n.Name,
		Code:   n.Code,
		Level:  n.Level,
		Order:  n.Order,
		Active: n.Active,
	}
	if n.ParentID != nil {
		e.ParentID = *n.ParentID
	}
	if !n.CreatedAt.IsZero() {
		e.CreatedAt = n.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !n.UpdatedAt.IsZero() {
		e.UpdatedAt = n.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return e
}
