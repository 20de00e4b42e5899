package tree

import (
	"fmt"
	"sort"

	"github.com/lherron/cattree/internal/domain"
)

// ViolationKind names an integrity problem found in stored data
type ViolationKind string

const (
	OrphanParent  ViolationKind = "orphan_parent"
	DepthExceeded ViolationKind = "depth_exceeded"
	LevelMismatch ViolationKind = "level_mismatch"
	CycleDetected ViolationKind = "cycle_detected"
	TypeMismatch  ViolationKind = "type_mismatch"
)

var kindErrors = map[ViolationKind]error{
	OrphanParent:  domain.ErrOrphanParent,
	DepthExceeded: domain.ErrDepthExceeded,
	LevelMismatch: domain.ErrLevelMismatch,
	CycleDetected: domain.ErrCycleDetected,
	TypeMismatch:  domain.ErrTypeMismatch,
}

// Violation is one integrity problem. Violations are reported, never repaired.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	NodeID string        `json:"node_id"`
	Detail string        `json:"detail"`
}

// Err converts the violation into a typed *domain.Error
func (v Violation) Err() error {
	return &domain.Error{Kind: kindErrors[v.Kind], ID: v.NodeID, Detail: v.Detail}
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Kind, v.NodeID, v.Detail)
}

// Validate checks every indexed node, inactive ones included, and returns the
// violations ordered by node id then kind. An empty result means the tree is
// consistent.
func (ix *Index) Validate() []Violation {
	var out []Violation
	add := func(kind ViolationKind, id, format string, args ...interface{}) {
		out = append(out, Violation{Kind: kind, NodeID: id, Detail: fmt.Sprintf(format, args...)})
	}

	for id, n := range ix.nodes {
		if n.Level < 1 || n.Level > domain.MaxLevel {
			add(DepthExceeded, id, "level %d outside 1..%d", n.Level, domain.MaxLevel)
		}

		if n.ParentID == nil {
			if n.Level != 1 {
				add(LevelMismatch, id, "root at level %d", n.Level)
			}
			continue
		}

		parent, ok := ix.nodes[*n.ParentID]
		if !ok {
			add(OrphanParent, id, "parent %s does not exist", *n.ParentID)
			continue
		}
		if parent.Type != n.Type {
			add(TypeMismatch, id, "parent %s has type %q, node has %q", parent.ID, parent.Type, n.Type)
		}
		if n.Level != parent.Level+1 {
			add(LevelMismatch, id, "level %d under parent at level %d", n.Level, parent.Level)
		}
		if ix.onCycle(id) {
			add(CycleDetected, id, "parent chain returns to this node")
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// onCycle reports whether following parent links from id leads back to id
func (ix *Index) onCycle(id string) bool {
	n := ix.nodes[id]
	for steps := 0; steps <= len(ix.nodes) && n.ParentID != nil; steps++ {
		if *n.ParentID == id {
			return true
		}
		next, ok := ix.nodes[*n.ParentID]
		if !ok {
			return false
		}
		n = next
	}
	return false
}
