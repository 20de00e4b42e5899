package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/events"
)

// NodeStore handles category node persistence operations.
type NodeStore struct {
	store *Store
}

var _ NodeRepository = (*NodeStore)(nil)

const nodeColumns = `id, name, code, type, level, parent_id, sort_order, active, etag, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*domain.Node, error) {
	n := &domain.Node{}
	// Use string intermediates for time fields since SQLite stores times as strings
	var createdAt, updatedAt string
	var active int
	err := row.Scan(&n.ID, &n.Name, &n.Code, &n.Type, &n.Level, &n.ParentID,
		&n.Order, &active, &n.ETag, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	n.Active = active != 0
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	return n, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func listNodes(ctx context.Context, q queryer, nodeType string, includeInactive bool) ([]domain.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM category_nodes WHERE type = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY level, sort_order, name, id`

	rows, err := q.QueryContext(ctx, query, nodeType)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// checkParentType resolves a parent outside nodeType's tree so cross-type
// parents fail with TypeMismatch instead of NotFound.
func checkParentType(ctx context.Context, tx *sql.Tx, nodeType string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	row := tx.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM category_nodes WHERE id = ?`, *parentID)
	parent, err := scanNode(row)
	if err == sql.ErrNoRows {
		return domain.NotFound("parent", *parentID)
	}
	if err != nil {
		return fmt.Errorf("failed to get parent: %w", err)
	}
	if parent.Type == nodeType {
		return nil
	}
	return foreignParent(nodeType, *parentID, parent)
}

func lookupType(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var nodeType string
	err := tx.QueryRowContext(ctx, `SELECT type FROM category_nodes WHERE id = ?`, id).Scan(&nodeType)
	if err == sql.ErrNoRows {
		return "", domain.NotFound("node", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get node: %w", err)
	}
	return nodeType, nil
}

// Create inserts a node and logs a category_node.created event.
func (ns *NodeStore) Create(ctx context.Context, actor string, params CreateParams) (*domain.Node, error) {
	var created *domain.Node

	err := ns.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := checkParentType(ctx, tx, params.Type, params.ParentID); err != nil {
			return err
		}
		all, err := listNodes(ctx, tx, params.Type, true)
		if err != nil {
			return err
		}
		node, err := prepareCreate(all, params)
		if err != nil {
			return err
		}

		ts := now()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO category_nodes (id, name, code, type, level, parent_id, sort_order, active, etag, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, node.ID, node.Name, node.Code, node.Type, node.Level, node.ParentID, node.Order, node.Active, ts, ts)
		if err != nil {
			return mapConstraintError(fmt.Errorf("failed to create node: %w", err))
		}
		node.CreatedAt = parseTime(ts)
		node.UpdatedAt = node.CreatedAt

		payload := map[string]interface{}{
			"name":  node.Name,
			"level": node.Level,
			"type":  node.Type,
		}
		if node.Code != "" {
			payload["code"] = node.Code
		}
		if node.ParentID != nil {
			payload["parent_id"] = *node.ParentID
		}
		if !node.Active {
			payload["active"] = false
		}
		if err := ew.LogNodeEvent(tx, actor, &node, "created", payload); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}

		created = &node
		return nil
	})

	return created, err
}

// Get retrieves a node by id, active or not.
func (ns *NodeStore) Get(ctx context.Context, id string) (*domain.Node, error) {
	row := ns.store.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM category_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFound("node", id)
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return n, nil
}

// ListByType returns every node of a type ordered by level, order, name.
func (ns *NodeStore) ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error) {
	return listNodes(ctx, ns.store.db, nodeType, includeInactive)
}

// Update applies field changes, moves and (de)activation, and logs a
// category_node.updated event. Descendants whose level shifts get their own
// category_node.relevelled events.
func (ns *NodeStore) Update(ctx context.Context, actor, id string, params UpdateParams) (*domain.Node, error) {
	var updated *domain.Node

	err := ns.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		nodeType, err := lookupType(ctx, tx, id)
		if err != nil {
			return err
		}
		if params.Parent != nil {
			if err := checkParentType(ctx, tx, nodeType, params.Parent.ParentID); err != nil {
				return err
			}
		}
		all, err := listNodes(ctx, tx, nodeType, true)
		if err != nil {
			return err
		}

		rows, changes, err := applyUpdate(all, id, params)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			// nothing changed; still honor the etag check above
			for i := range all {
				if all[i].ID == id {
					updated = &all[i]
				}
			}
			return nil
		}

		written, err := writeNodes(ctx, tx, rows)
		if err != nil {
			return err
		}

		for i := range written[1:] {
			d := &written[i+1]
			if err := ew.LogNodeEvent(tx, actor, d, "relevelled", map[string]interface{}{"level": d.Level}); err != nil {
				return fmt.Errorf("failed to log event: %w", err)
			}
		}
		if err := ew.LogNodeEvent(tx, actor, &written[0], "updated", changes); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}

		updated = &written[0]
		return nil
	})

	return updated, err
}

// writeNodes persists rows, bumping etag and updated_at on each. When levels
// grow the deepest rows are written first so the active-code index never sees
// a transient collision between a node and its own descendant.
func writeNodes(ctx context.Context, tx *sql.Tx, rows []domain.Node) ([]domain.Node, error) {
	ts := now()
	written := make([]domain.Node, len(rows))

	order := make([]int, len(rows))
	for i := range rows {
		order[i] = i
	}
	if len(rows) > 1 {
		var stored int
		if err := tx.QueryRowContext(ctx, `SELECT level FROM category_nodes WHERE id = ?`, rows[0].ID).Scan(&stored); err != nil {
			return nil, fmt.Errorf("failed to read level: %w", err)
		}
		if rows[0].Level > stored {
			for i := range order {
				order[i] = len(rows) - 1 - i
			}
		}
	}

	for _, i := range order {
		n := rows[i]
		n.ETag++
		n.UpdatedAt = parseTime(ts)
		_, err := tx.ExecContext(ctx, `
			UPDATE category_nodes
			SET name = ?, code = ?, type = ?, level = ?, parent_id = ?, sort_order = ?,
			    active = ?, etag = ?, updated_at = ?
			WHERE id = ?
		`, n.Name, n.Code, n.Type, n.Level, n.ParentID, n.Order, boolToInt(n.Active), n.ETag, ts, n.ID)
		if err != nil {
			return nil, mapConstraintError(fmt.Errorf("failed to update node %s: %w", n.ID, err))
		}
		written[i] = n
	}
	return written, nil
}

// Delete hard-deletes a node that has no children and no dependent references.
func (ns *NodeStore) Delete(ctx context.Context, actor, id string) error {
	return ns.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		nodeType, err := lookupType(ctx, tx, id)
		if err != nil {
			return err
		}
		all, err := listNodes(ctx, tx, nodeType, true)
		if err != nil {
			return err
		}
		node, err := checkDelete(all, id)
		if err != nil {
			return err
		}

		for _, dep := range ns.store.opts.Dependents {
			count, err := countRefs(ctx, tx, dep, id)
			if err != nil {
				return err
			}
			if count > 0 {
				return domain.Errorf(domain.ErrHasReferences, id, "%d %s rows", count, dep)
			}
		}

		// Log event BEFORE deleting
		if err := ew.LogNodeEvent(tx, actor, node, "deleted", map[string]interface{}{
			"name": node.Name,
			"type": node.Type,
		}); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM category_nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete node: %w", err)
		}
		return nil
	})
}

// Retype moves a root and its whole subtree into another type.
// Returns the number of nodes rewritten; 0 when the root already has newType.
func (ns *NodeStore) Retype(ctx context.Context, actor, rootID, newType string) (int, error) {
	var count int

	err := ns.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		oldType, err := lookupType(ctx, tx, rootID)
		if err != nil {
			return err
		}
		src, err := listNodes(ctx, tx, oldType, true)
		if err != nil {
			return err
		}
		dst, err := listNodes(ctx, tx, newType, true)
		if err != nil {
			return err
		}

		rows, err := prepareRetype(src, dst, rootID, newType)
		if err != nil || len(rows) == 0 {
			return err
		}

		written, err := writeNodes(ctx, tx, rows)
		if err != nil {
			return err
		}
		for i := range written {
			if err := ew.LogNodeEvent(tx, actor, &written[i], "retyped", map[string]interface{}{
				"from": oldType,
				"to":   newType,
			}); err != nil {
				return fmt.Errorf("failed to log event: %w", err)
			}
		}
		count = len(written)
		return nil
	})

	return count, err
}
