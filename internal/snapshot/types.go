// Package snapshot provides canonical JSON snapshots of category trees.
//
// A snapshot holds category types and their nodes keyed by id. Exports are
// deterministic so two snapshots of the same state have the same snapshot_rev;
// imports recreate nodes with their original ids so dependent references
// stay valid.
package snapshot

// SchemaVersion is the snapshot format version written by Export
const SchemaVersion = 1

// Snapshot represents the category state of one or more types.
type Snapshot struct {
	Meta  Meta                 `json:"meta"`
	Types map[string]TypeEntry `json:"types,omitempty"`
	Nodes map[string]NodeEntry `json:"nodes,omitempty"`
}

// Meta contains snapshot metadata.
type Meta struct {
	SchemaVersion int    `json:"schema_version"`
	SnapshotRev   string `json:"snapshot_rev,omitempty"`
	GeneratedAt   string `json:"generated_at,omitempty"`
}

// TypeEntry represents a category type. Keys under "types" are type keys.
type TypeEntry struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Order    int    `json:"order"`
	IsSystem bool   `json:"is_system,omitempty"`
}

// NodeEntry represents a category node. Keys under "nodes" are node ids.
type NodeEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	Level     int    `json:"level"`
	ParentID  string `json:"parent_id,omitempty"`
	Order     int    `json:"order"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ExportOptions configures an export.
type ExportOptions struct {
	// Types limits the export; empty exports every registered type
	Types []string
	// IncludeInactive keeps deactivated nodes (merged sources, retired leaves)
	IncludeInactive bool
	// Canonical writes compact JSON; otherwise output is indented
	Canonical bool
}

// ImportOptions configures an import.
type ImportOptions struct {
	DryRun bool
}

// ImportResult contains the result of an import.
type ImportResult struct {
	SnapshotRev  string `json:"snapshot_rev,omitempty"`
	TypesCreated int    `json:"types_created"`
	NodesCreated int    `json:"nodes_created"`
	NodesSkipped int    `json:"nodes_skipped"`
	DryRun       bool   `json:"dry_run"`
}
