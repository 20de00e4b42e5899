package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/events"
)

// TypeStore handles category type persistence operations.
type TypeStore struct {
	store *Store
}

var _ TypeRepository = (*TypeStore)(nil)

const typeColumns = `key, label, sort_order, is_system, created_at, updated_at`

func scanType(row rowScanner) (*domain.CategoryType, error) {
	t := &domain.CategoryType{}
	var createdAt, updatedAt string
	var isSystem int
	if err := row.Scan(&t.Key, &t.Label, &t.Order, &isSystem, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.IsSystem = isSystem != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// List returns all types ordered by sort order, then key.
func (ts *TypeStore) List(ctx context.Context) ([]domain.CategoryType, error) {
	rows, err := ts.store.db.QueryContext(ctx, `SELECT `+typeColumns+` FROM category_types ORDER BY sort_order, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list types: %w", err)
	}
	defer rows.Close()

	var types []domain.CategoryType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan type: %w", err)
		}
		types = append(types, *t)
	}
	return types, rows.Err()
}

// Get retrieves a type by key.
func (ts *TypeStore) Get(ctx context.Context, key string) (*domain.CategoryType, error) {
	t, err := scanType(ts.store.db.QueryRowContext(ctx, `SELECT `+typeColumns+` FROM category_types WHERE key = ?`, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFound("type", key)
		}
		return nil, fmt.Errorf("failed to get type: %w", err)
	}
	return t, nil
}

// Create inserts a type and logs a category_type.created event.
func (ts *TypeStore) Create(ctx context.Context, actor string, t domain.CategoryType) (*domain.CategoryType, error) {
	if err := domain.ValidateTypeKey(t.Key); err != nil {
		return nil, err
	}
	t.Label = strings.TrimSpace(t.Label)
	if t.Label == "" {
		t.Label = t.Key
	}

	var created *domain.CategoryType
	err := ts.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_types WHERE key = ?`, t.Key).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check type: %w", err)
		}
		if exists > 0 {
			return domain.Errorf(domain.ErrAlreadyExists, t.Key, "type already registered")
		}

		stamp := now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO category_types (key, label, sort_order, is_system, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, t.Key, t.Label, t.Order, boolToInt(t.IsSystem), stamp, stamp)
		if err != nil {
			return fmt.Errorf("failed to create type: %w", err)
		}

		if err := ew.LogTypeEvent(tx, actor, t.Key, "created", map[string]interface{}{
			"label":     t.Label,
			"order":     t.Order,
			"is_system": t.IsSystem,
		}); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}

		t.CreatedAt = parseTime(stamp)
		t.UpdatedAt = t.CreatedAt
		created = &t
		return nil
	})
	return created, err
}

// UpdateLabel changes the display label. The key never changes.
func (ts *TypeStore) UpdateLabel(ctx context.Context, actor, key, label string) (*domain.CategoryType, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, key, "label cannot be empty")
	}

	err := ts.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.ExecContext(ctx, `UPDATE category_types SET label = ?, updated_at = ? WHERE key = ?`, label, now(), key)
		if err != nil {
			return fmt.Errorf("failed to update type: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound("type", key)
		}
		return ew.LogTypeEvent(tx, actor, key, "renamed", map[string]interface{}{"label": label})
	})
	if err != nil {
		return nil, err
	}
	return ts.Get(ctx, key)
}

// Delete removes a type row. Callers enforce the retire rules.
func (ts *TypeStore) Delete(ctx context.Context, actor, key string) error {
	return ts.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := ew.LogTypeEvent(tx, actor, key, "deleted", nil); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM category_types WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("failed to delete type: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound("type", key)
		}
		return nil
	})
}
