// Package registry manages category types, the namespaces that each own an
// independent tree.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/paths"
	"github.com/lherron/cattree/internal/store"
)

// NodeLister is the part of the node store Retire needs
type NodeLister interface {
	ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error)
}

// Registry registers, renames and retires types
type Registry struct {
	types store.TypeRepository
	nodes NodeLister
	actor string
}

// New creates a registry acting as actor
func New(types store.TypeRepository, nodes NodeLister, actor string) *Registry {
	return &Registry{types: types, nodes: nodes, actor: actor}
}

// List returns every registered type in display order
func (r *Registry) List(ctx context.Context) ([]domain.CategoryType, error) {
	return r.types.List(ctx)
}

// Get returns one type
func (r *Registry) Get(ctx context.Context, key string) (*domain.CategoryType, error) {
	return r.types.Get(ctx, key)
}

// Register adds a type. An empty key is derived from label with the slug
// rules ("Receitas - Base" becomes "receitas_-_base"); a given key is
// normalized the same way.
func (r *Registry) Register(ctx context.Context, key, label string, order int, isSystem bool) (*domain.CategoryType, error) {
	label = strings.TrimSpace(label)
	source := key
	if strings.TrimSpace(source) == "" {
		source = label
	}
	normalized, err := paths.NormalizeTypeKey(source)
	if err != nil {
		return nil, domain.Errorf(domain.ErrInvalidInput, key, "%v", err)
	}
	if label == "" {
		label = normalized
	}
	return r.types.Create(ctx, r.actor, domain.CategoryType{
		Key:      normalized,
		Label:    label,
		Order:    order,
		IsSystem: isSystem,
	})
}

// Rename changes a type's label; the key nodes refer to never changes
func (r *Registry) Rename(ctx context.Context, key, label string) (*domain.CategoryType, error) {
	return r.types.UpdateLabel(ctx, r.actor, key, label)
}

// Retire removes a type. System types cannot be retired, nor types that
// still hold active nodes. Inactive nodes are kept as history.
func (r *Registry) Retire(ctx context.Context, key string) error {
	t, err := r.types.Get(ctx, key)
	if err != nil {
		return err
	}
	if t.IsSystem {
		return domain.Errorf(domain.ErrSystemType, key, "system types cannot be retired")
	}
	active, err := r.nodes.ListByType(ctx, key, false)
	if err != nil {
		return fmt.Errorf("failed to count nodes of %s: %w", key, err)
	}
	if len(active) > 0 {
		return domain.Errorf(domain.ErrTypeNotEmpty, key, "%d active nodes", len(active))
	}
	return r.types.Delete(ctx, r.actor, key)
}

// EnsureDefaults registers the system types that are missing and returns
// how many were added.
func (r *Registry) EnsureDefaults(ctx context.Context) (int, error) {
	added := 0
	for _, t := range domain.DefaultTypes() {
		_, err := r.types.Create(ctx, r.actor, t)
		switch {
		case err == nil:
			added++
		case errors.Is(err, domain.ErrAlreadyExists):
		default:
			return added, fmt.Errorf("failed to register %s: %w", t.Key, err)
		}
	}
	return added, nil
}
