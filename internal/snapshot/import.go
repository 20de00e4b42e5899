package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/store"
)

// Load parses a snapshot and validates its structure.
func Load(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if err := Validate(&snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &snap, nil
}

// Validate checks that every node's type and parent are in the snapshot and
// that levels and activity agree with the tree shape.
func Validate(snap *Snapshot) error {
	if snap.Meta.SchemaVersion < 1 || snap.Meta.SchemaVersion > SchemaVersion {
		return fmt.Errorf("unsupported schema_version: %d", snap.Meta.SchemaVersion)
	}
	for key, t := range snap.Types {
		if t.Key != key {
			return fmt.Errorf("type entry %q has key %q", key, t.Key)
		}
	}
	for id, n := range snap.Nodes {
		if n.ID != id {
			return fmt.Errorf("node entry %s has id %s", id, n.ID)
		}
		if _, ok := snap.Types[n.Type]; !ok {
			return fmt.Errorf("node %s references unknown type %s", id, n.Type)
		}
		if n.ParentID == "" {
			if n.Level != 1 {
				return fmt.Errorf("root node %s is at level %d", id, n.Level)
			}
			continue
		}
		parent, ok := snap.Nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("node %s references unknown parent %s", id, n.ParentID)
		}
		if parent.Type != n.Type {
			return fmt.Errorf("node %s is %s but its parent is %s", id, n.Type, parent.Type)
		}
		if n.Level != parent.Level+1 || n.Level > domain.MaxLevel {
			return fmt.Errorf("node %s is at level %d under a level %d parent", id, n.Level, parent.Level)
		}
		if n.Active && !parent.Active {
			return fmt.Errorf("active node %s under inactive parent %s", id, n.ParentID)
		}
	}
	return nil
}

// Import recreates the snapshot's types and nodes. Types and nodes that
// already exist are left alone, so importing the same snapshot twice is a
// no-op. Nodes keep their ids, names, codes, order and activity.
func Import(ctx context.Context, snap *Snapshot, types store.TypeRepository, nodes store.NodeRepository, actor string, opts ImportOptions) (*ImportResult, error) {
	if err := Validate(snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	result := &ImportResult{SnapshotRev: snap.Meta.SnapshotRev, DryRun: opts.DryRun}

	typeKeys := make([]string, 0, len(snap.Types))
	for k := range snap.Types {
		typeKeys = append(typeKeys, k)
	}
	sort.Strings(typeKeys)
	for _, k := range typeKeys {
		_, err := types.Get(ctx, k)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return result, err
		}
		result.TypesCreated++
		if opts.DryRun {
			continue
		}
		t := snap.Types[k]
		if _, err := types.Create(ctx, actor, domain.CategoryType{Key: t.Key, Label: t.Label, Order: t.Order, IsSystem: t.IsSystem}); err != nil {
			return result, fmt.Errorf("failed to create type %s: %w", k, err)
		}
	}

	for _, n := range ordered(snap.Nodes) {
		_, err := nodes.Get(ctx, n.ID)
		if err == nil {
			result.NodesSkipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return result, err
		}
		result.NodesCreated++
		if opts.DryRun {
			continue
		}

		order := n.Order
		params := store.CreateParams{
			ID:       n.ID,
			Type:     n.Type,
			Name:     n.Name,
			Code:     n.Code,
			Order:    &order,
			Inactive: !n.Active,
		}
		if n.ParentID != "" {
			parent := n.ParentID
			params.ParentID = &parent
		}
		if _, err := nodes.Create(ctx, actor, params); err != nil {
			return result, fmt.Errorf("failed to import node %s (%s): %w", n.ID, n.Name, err)
		}
	}
	return result, nil
}

// ordered returns nodes parents first: by level, then order, then id.
func ordered(m map[string]NodeEntry) []NodeEntry {
	out := make([]NodeEntry, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	return out
}
