package store

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/paths"
)

// The functions in this file hold the tree rules every backend enforces.
// They take the full node set of one type (inactive included), decide, and
// return the rows to write; backends only load and persist.

func indexByID(nodes []domain.Node) map[string]*domain.Node {
	byID := make(map[string]*domain.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}
	return byID
}

// prepareCreate validates params against the type's nodes and returns the node to insert.
// Timestamps are left for the backend.
func prepareCreate(all []domain.Node, p CreateParams) (domain.Node, error) {
	name := strings.TrimSpace(p.Name)
	if err := domain.ValidateName(name); err != nil {
		return domain.Node{}, err
	}
	if err := domain.ValidateTypeKey(p.Type); err != nil {
		return domain.Node{}, err
	}
	code := paths.NormalizeCode(p.Code)
	if err := domain.ValidateCode(code); err != nil {
		return domain.Node{}, err
	}

	byID := indexByID(all)
	var parent *domain.Node
	if p.ParentID != nil {
		parent = byID[*p.ParentID]
		if parent == nil {
			return domain.Node{}, domain.NotFound("parent", *p.ParentID)
		}
	}

	levelParent := parent
	if p.Inactive && parent != nil && !parent.Active {
		detached := *parent
		detached.Active = true
		levelParent = &detached
	}
	level, err := domain.ChildLevel(p.Type, levelParent)
	if err != nil {
		return domain.Node{}, err
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return domain.Node{}, domain.Errorf(domain.ErrInvalidInput, id, "node id must be a uuid")
	}
	if byID[id] != nil {
		return domain.Node{}, domain.Errorf(domain.ErrAlreadyExists, id, "node already exists")
	}

	node := domain.Node{
		ID:       id,
		Name:     name,
		Code:     code,
		Type:     p.Type,
		Level:    level,
		ParentID: p.ParentID,
		Active:   !p.Inactive,
		ETag:     1,
	}

	if p.Order != nil {
		node.Order = *p.Order
	} else {
		node.Order = nextOrder(all, p.ParentID)
	}

	if err := checkCodes(all, []domain.Node{node}); err != nil {
		return domain.Node{}, err
	}
	return node, nil
}

// foreignParent reports why parent cannot hold a node of nodeType when the
// parent was not found among that type's nodes.
func foreignParent(nodeType, parentID string, parent *domain.Node) error {
	if parent == nil {
		return domain.NotFound("parent", parentID)
	}
	if _, err := domain.ChildLevel(nodeType, parent); err != nil {
		return err
	}
	return nil
}

// nextOrder returns max(sibling order)+1, or 0 when there are no siblings
func nextOrder(all []domain.Node, parentID *string) int {
	next := 0
	for _, n := range all {
		if sameParent(n.ParentID, parentID) && n.Order+1 > next {
			next = n.Order + 1
		}
	}
	return next
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// checkCodes rejects any candidate that would share an active code with another
// active node of the same type and level. Candidates override stored rows by id.
func checkCodes(all []domain.Node, candidates []domain.Node) error {
	overrides := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		overrides[c.ID] = true
	}

	final := make([]domain.Node, 0, len(all)+len(candidates))
	for _, n := range all {
		if !overrides[n.ID] {
			final = append(final, n)
		}
	}
	final = append(final, candidates...)

	for _, c := range candidates {
		if !c.Active || c.Code == "" {
			continue
		}
		for _, other := range final {
			if other.ID == c.ID {
				continue
			}
			if other.Active && other.Type == c.Type && other.Level == c.Level && other.Code == c.Code {
				return domain.Errorf(domain.ErrDuplicateCode, other.ID, "code %q already used at level %d of %s", c.Code, c.Level, c.Type)
			}
		}
	}
	return nil
}

// descendants returns every node below id (inactive included), breadth-first.
// The walk is bounded by MaxLevel so corrupt cycles cannot loop forever.
func descendants(all []domain.Node, id string) []domain.Node {
	children := make(map[string][]domain.Node)
	for _, n := range all {
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n)
		}
	}

	var out []domain.Node
	frontier := []string{id}
	seen := map[string]bool{id: true}
	for depth := 0; depth < domain.MaxLevel && len(frontier) > 0; depth++ {
		var next []string
		for _, pid := range frontier {
			for _, c := range children[pid] {
				if seen[c.ID] {
					continue
				}
				seen[c.ID] = true
				out = append(out, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return out
}

// applyUpdate computes the rows an update rewrites: the node itself first,
// then any descendants whose level changes on reparent. changes describes
// the node's field changes for the audit log.
func applyUpdate(all []domain.Node, id string, p UpdateParams) ([]domain.Node, map[string]interface{}, error) {
	byID := indexByID(all)
	current := byID[id]
	if current == nil {
		return nil, nil, domain.NotFound("node", id)
	}
	if err := domain.CheckETag(p.IfMatch, current.ETag); err != nil {
		return nil, nil, err
	}

	node := *current
	changes := map[string]interface{}{}
	var moved []domain.Node

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if err := domain.ValidateName(name); err != nil {
			return nil, nil, err
		}
		if name != node.Name {
			changes["name"] = name
			node.Name = name
		}
	}

	if p.Code != nil {
		code := paths.NormalizeCode(*p.Code)
		if err := domain.ValidateCode(code); err != nil {
			return nil, nil, err
		}
		if code != node.Code {
			changes["code"] = code
			node.Code = code
		}
	}

	if p.Order != nil && *p.Order != node.Order {
		changes["order"] = *p.Order
		node.Order = *p.Order
	}

	if p.Parent != nil && !sameParent(p.Parent.ParentID, node.ParentID) {
		var err error
		moved, err = reparent(all, byID, &node, p.Parent.ParentID)
		if err != nil {
			return nil, nil, err
		}
		changes["parent_id"] = p.Parent.ParentID
		changes["level"] = node.Level
		if p.Order == nil {
			node.Order = nextOrder(all, p.Parent.ParentID)
			changes["order"] = node.Order
		}
	}

	if p.Active != nil && *p.Active != node.Active {
		if *p.Active {
			if node.ParentID != nil {
				if parent := byID[*node.ParentID]; parent == nil || !parent.Active {
					return nil, nil, domain.Errorf(domain.ErrParentInactive, node.ID, "reactivate the parent first")
				}
			}
		} else if n := countActiveChildren(all, node.ID); n > 0 {
			return nil, nil, domain.Errorf(domain.ErrHasChildren, node.ID, "%d active children", n)
		}
		changes["active"] = *p.Active
		node.Active = *p.Active
	}

	rows := append([]domain.Node{node}, moved...)
	if len(changes) == 0 {
		return nil, changes, nil
	}
	if err := checkCodes(all, rows); err != nil {
		return nil, nil, err
	}
	return rows, changes, nil
}

// reparent points node at newParentID and recomputes levels for its subtree.
// It returns the descendants whose level changed.
func reparent(all []domain.Node, byID map[string]*domain.Node, node *domain.Node, newParentID *string) ([]domain.Node, error) {
	var parent *domain.Node
	if newParentID != nil {
		if *newParentID == node.ID {
			return nil, domain.Errorf(domain.ErrWouldCreateCycle, node.ID, "node cannot be its own parent")
		}
		parent = byID[*newParentID]
		if parent == nil {
			return nil, domain.NotFound("parent", *newParentID)
		}
	}

	below := descendants(all, node.ID)
	if parent != nil {
		for _, d := range below {
			if d.ID == parent.ID {
				return nil, domain.Errorf(domain.ErrWouldCreateCycle, node.ID, "new parent %s is inside the moved subtree", parent.ID)
			}
		}
	}

	level, err := domain.ChildLevel(node.Type, parent)
	if err != nil {
		return nil, err
	}

	delta := level - node.Level
	deepest := level
	var moved []domain.Node
	for _, d := range below {
		d.Level += delta
		if d.Level > deepest {
			deepest = d.Level
		}
		if delta != 0 {
			moved = append(moved, d)
		}
	}
	if deepest > domain.MaxLevel {
		return nil, domain.Errorf(domain.ErrDepthExceeded, node.ID, "subtree would reach level %d", deepest)
	}

	node.ParentID = newParentID
	node.Level = level
	return moved, nil
}

func countActiveChildren(all []domain.Node, id string) int {
	n := 0
	for _, c := range all {
		if c.Active && c.ParentID != nil && *c.ParentID == id {
			n++
		}
	}
	return n
}

func countChildren(all []domain.Node, id string) (active, inactive int) {
	for _, c := range all {
		if c.ParentID != nil && *c.ParentID == id {
			if c.Active {
				active++
			} else {
				inactive++
			}
		}
	}
	return active, inactive
}

// checkDelete enforces the no-cascade rule: any child row blocks a hard delete.
func checkDelete(all []domain.Node, id string) (*domain.Node, error) {
	node := indexByID(all)[id]
	if node == nil {
		return nil, domain.NotFound("node", id)
	}
	active, inactive := countChildren(all, id)
	if active+inactive > 0 {
		return nil, domain.Errorf(domain.ErrHasChildren, id, "%d active and %d inactive children", active, inactive)
	}
	return node, nil
}

// prepareRetype moves a root and its subtree into newType, checking codes
// against the destination type's nodes.
func prepareRetype(src []domain.Node, dst []domain.Node, rootID, newType string) ([]domain.Node, error) {
	if err := domain.ValidateTypeKey(newType); err != nil {
		return nil, err
	}
	root := indexByID(src)[rootID]
	if root == nil {
		return nil, domain.NotFound("node", rootID)
	}
	if !root.IsRoot() {
		return nil, domain.Errorf(domain.ErrInvalidInput, rootID, "only level 1 nodes can change type")
	}
	if root.Type == newType {
		return nil, nil
	}

	rows := append([]domain.Node{*root}, descendants(src, rootID)...)
	for i := range rows {
		rows[i].Type = newType
	}
	if err := checkCodes(dst, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// sortNodes orders by level, then order, then name, then id
func sortNodes(nodes []domain.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
