// Package selectors resolves command-line node selectors. A selector is either
// a node id or a typed name path such as "receitas:Guarnição/Arroz".
package selectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/paths"
	"github.com/lherron/cattree/internal/tree"
)

// Selector represents a parsed selector. Exactly one of ID and Type is set.
type Selector struct {
	ID   string
	Type string
	Path []string
}

// Parse parses a selector string. Anything that is a uuid is an id; anything
// else must be <type>:<name>[/<name>...].
func Parse(selector string) (Selector, error) {
	selector = strings.TrimSpace(selector)
	if _, err := uuid.Parse(selector); err == nil {
		return Selector{ID: selector}, nil
	}

	nodeType, path, ok := strings.Cut(selector, ":")
	if !ok || nodeType == "" {
		return Selector{}, domain.Errorf(domain.ErrInvalidInput, selector, "expected a node id or <type>:<path>")
	}
	segments := paths.SplitPath(path)
	if len(segments) == 0 {
		return Selector{}, domain.Errorf(domain.ErrInvalidInput, selector, "empty path")
	}
	if len(segments) > domain.MaxLevel {
		return Selector{}, domain.Errorf(domain.ErrDepthExceeded, selector, "path has %d levels", len(segments))
	}
	return Selector{Type: nodeType, Path: segments}, nil
}

func (s Selector) String() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Type + ":" + paths.JoinPath(s.Path...)
}

// Getter loads a node by id
type Getter interface {
	Get(ctx context.Context, id string) (*domain.Node, error)
}

// Trees loads a type's tree index
type Trees interface {
	Tree(ctx context.Context, nodeType string) (*tree.Index, error)
}

// Resolve returns the node a selector names. Path segments match a node's
// name ignoring case and accents, or its code. Active nodes win over
// inactive ones; two active matches at one level are ambiguous.
func Resolve(ctx context.Context, nodes Getter, trees Trees, selector string) (*domain.Node, error) {
	sel, err := Parse(selector)
	if err != nil {
		return nil, err
	}
	if sel.ID != "" {
		return nodes.Get(ctx, sel.ID)
	}

	ix, err := trees.Tree(ctx, sel.Type)
	if err != nil {
		return nil, err
	}

	parent := ""
	var found domain.Node
	for i, segment := range sel.Path {
		var candidates []domain.Node
		if parent == "" {
			candidates = roots(ix)
		} else {
			candidates = ix.AllChildren(parent)
		}

		match, err := pick(candidates, segment)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", paths.JoinPath(sel.Path[:i+1]...), err)
		}
		if match == nil {
			return nil, domain.NotFound("node", sel.Type+":"+paths.JoinPath(sel.Path[:i+1]...))
		}
		found = *match
		parent = match.ID
	}
	return &found, nil
}

func roots(ix *tree.Index) []domain.Node {
	var out []domain.Node
	for _, n := range ix.Nodes() {
		if n.IsRoot() {
			out = append(out, n)
		}
	}
	return out
}

func pick(candidates []domain.Node, segment string) (*domain.Node, error) {
	key := paths.NormalizeName(segment)
	code := paths.NormalizeCode(segment)

	var active, inactive []domain.Node
	for _, c := range candidates {
		if paths.NormalizeName(c.Name) != key && (c.Code == "" || c.Code != code) {
			continue
		}
		if c.Active {
			active = append(active, c)
		} else {
			inactive = append(inactive, c)
		}
	}

	switch {
	case len(active) == 1:
		return &active[0], nil
	case len(active) > 1:
		return nil, domain.Errorf(domain.ErrInvalidInput, active[0].ID, "%q matches %d active nodes, use an id", segment, len(active))
	case len(inactive) == 1:
		return &inactive[0], nil
	case len(inactive) > 1:
		return nil, domain.Errorf(domain.ErrInvalidInput, inactive[0].ID, "%q matches %d inactive nodes, use an id", segment, len(inactive))
	}
	return nil, nil
}
