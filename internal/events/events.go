package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lherron/cattree/internal/cursor"
	"github.com/lherron/cattree/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (actor, resource_type, resource_id, event_type, etag, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.Actor, event.ResourceType, event.ResourceID, event.EventType, event.ETag, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogNodeEvent logs a category_node.<action> event with a JSON payload
func (w *Writer) LogNodeEvent(tx *sql.Tx, actor string, node *domain.Node, action string, payload map[string]interface{}) error {
	var etag *int64
	if node.ETag > 0 {
		etag = &node.ETag
	}
	return w.log(tx, actor, domain.ResourceNode, node.ID, "category_node."+action, etag, payload)
}

// LogTypeEvent logs a category_type.<action> event
func (w *Writer) LogTypeEvent(tx *sql.Tx, actor, key, action string, payload map[string]interface{}) error {
	return w.log(tx, actor, domain.ResourceType, key, "category_type."+action, nil, payload)
}

// LogReferencesRewritten logs a reference.rewritten event against the source node
func (w *Writer) LogReferencesRewritten(tx *sql.Tx, actor string, dep domain.Dependent, fromID, toID string, count int64) error {
	return w.log(tx, actor, domain.ResourceReference, fromID, "reference.rewritten", nil, map[string]interface{}{
		"collection": dep.Collection,
		"field":      dep.Field,
		"to_id":      toID,
		"count":      count,
	})
}

func (w *Writer) log(tx *sql.Tx, actor, resourceType, resourceID, eventType string, etag *int64, payload map[string]interface{}) error {
	var payloadStr *string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		s := string(data)
		payloadStr = &s
	}

	return w.LogEvent(tx, &domain.Event{
		Actor:        domain.StringPtr(actor),
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		EventType:    eventType,
		ETag:         etag,
		Payload:      payloadStr,
	})
}

func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}

// List returns events for a resource id, newest first. limit <= 0 means unlimited.
func List(db *sql.DB, resourceID string, limit int) ([]domain.Event, error) {
	evs, _, err := Page(db, resourceID, limit, "")
	return evs, err
}

// Page returns up to limit events for a resource id, newest first, starting
// after the encoded cursor when one is given. next is empty on the last page.
func Page(db *sql.DB, resourceID string, limit int, after string) (evs []domain.Event, next string, err error) {
	query := `
		SELECT id, timestamp, actor, resource_type, resource_id, event_type, etag, payload
		FROM event_log WHERE resource_id = ?
	`
	args := []interface{}{resourceID}
	if after != "" {
		c, err := cursor.Decode(after, resourceID)
		if err != nil {
			return nil, "", err
		}
		clause, params := c.WhereClause("id", true)
		query += " AND " + clause
		args = append(args, params...)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		// one extra row tells whether another page exists
		query += " LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.Event
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &e.ResourceType, &e.ResourceID, &e.EventType, &e.ETag, &e.Payload); err != nil {
			return nil, "", fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		evs = append(evs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	if limit > 0 && len(evs) > limit {
		evs = evs[:limit]
		c, err := cursor.New(resourceID, evs[limit-1].ID)
		if err != nil {
			return nil, "", err
		}
		if next, err = c.Encode(); err != nil {
			return nil, "", err
		}
	}
	return evs, next, nil
}
