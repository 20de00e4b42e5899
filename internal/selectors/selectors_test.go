package selectors

import (
	"context"
	"errors"
	"testing"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/tree"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		wantID   string
		wantType string
		wantPath int
		wantErr  error
	}{
		{"3f0c6c8e-7a1b-4c2d-9e8f-0a1b2c3d4e5f", "3f0c6c8e-7a1b-4c2d-9e8f-0a1b2c3d4e5f", "", 0, nil},
		{"receitas:Guarnição", "", "receitas", 1, nil},
		{"receitas:Guarnição/Arroz/Arroz Branco", "", "receitas", 3, nil},
		{"receitas:/Guarnição/", "", "receitas", 1, nil},
		{"Guarnição/Arroz", "", "", 0, domain.ErrInvalidInput},
		{"receitas:", "", "", 0, domain.ErrInvalidInput},
		{":Arroz", "", "", 0, domain.ErrInvalidInput},
		{"receitas:a/b/c/d", "", "", 0, domain.ErrDepthExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sel, err := Parse(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if sel.ID != tt.wantID || sel.Type != tt.wantType || len(sel.Path) != tt.wantPath {
				t.Errorf("Parse(%q) = %+v", tt.input, sel)
			}
		})
	}
}

type fakeTrees struct {
	nodes []domain.Node
}

func (f fakeTrees) Tree(ctx context.Context, nodeType string) (*tree.Index, error) {
	var of []domain.Node
	for _, n := range f.nodes {
		if n.Type == nodeType {
			of = append(of, n)
		}
	}
	return tree.Build(of), nil
}

func (f fakeTrees) Get(ctx context.Context, id string) (*domain.Node, error) {
	for _, n := range f.nodes {
		if n.ID == id {
			return &n, nil
		}
	}
	return nil, domain.NotFound("node", id)
}

func node(id, name, code string, level int, parent string, active bool) domain.Node {
	n := domain.Node{ID: id, Name: name, Code: code, Type: "receitas", Level: level, Active: active}
	if parent != "" {
		n.ParentID = &parent
	}
	return n
}

func TestResolve(t *testing.T) {
	f := fakeTrees{nodes: []domain.Node{
		node("g", "Guarnição", "017", 1, "", true),
		node("a", "Arroz", "", 2, "g", true),
		node("ab", "Arroz Branco", "", 3, "a", true),
		node("old", "GUARNICAO", "", 1, "", false),
		node("f1", "Feijão", "", 2, "g", true),
		node("f2", "FEIJAO", "", 2, "g", true),
	}}
	ctx := context.Background()

	tests := []struct {
		selector string
		wantID   string
		wantErr  error
	}{
		{"receitas:guarnicao", "g", nil},
		{"receitas:017", "g", nil},
		{"receitas:Guarnição/ARROZ/arroz branco", "ab", nil},
		{"receitas:Guarnição/Batata", "", domain.ErrNotFound},
		{"receitas:Guarnição/Feijao", "", domain.ErrInvalidInput},
		{"contas:Guarnição", "", domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			n, err := Resolve(ctx, f, f, tt.selector)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tt.selector, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.selector, err)
			}
			if n.ID != tt.wantID {
				t.Errorf("Resolve(%q) = %s, want %s", tt.selector, n.ID, tt.wantID)
			}
		})
	}
}

func TestResolve_InactiveOnlyWhenNoActiveMatch(t *testing.T) {
	f := fakeTrees{nodes: []domain.Node{
		node("old", "Sobremesas", "", 1, "", false),
	}}
	n, err := Resolve(context.Background(), f, f, "receitas:sobremesas")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if n.ID != "old" {
		t.Errorf("expected the inactive node, got %s", n.ID)
	}
}
