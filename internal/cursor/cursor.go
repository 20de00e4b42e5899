// Package cursor provides opaque keyset pagination cursors.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor marks the last row returned from a listing. Scope ties it to the
// listing it came from (for the event log, the resource id).
type Cursor struct {
	Scope  string `json:"scope"`
	LastID int64  `json:"last_id"`
}

// New creates a cursor after lastID
func New(scope string, lastID int64) (*Cursor, error) {
	if lastID <= 0 {
		return nil, fmt.Errorf("last ID required")
	}
	return &Cursor{Scope: scope, LastID: lastID}, nil
}

// Encode serializes the cursor to an opaque base64 string
func (c *Cursor) Encode() (string, error) {
	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(jsonData), nil
}

// Decode deserializes a cursor and checks it belongs to scope
func Decode(encoded, scope string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty cursor string")
	}

	jsonData, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if c.LastID <= 0 {
		return nil, fmt.Errorf("cursor missing last ID")
	}
	if c.Scope != scope {
		return nil, fmt.Errorf("cursor belongs to %q, not %q", c.Scope, scope)
	}
	return &c, nil
}

// WhereClause returns the keyset condition for rows after the cursor when
// ordered by column.
func (c *Cursor) WhereClause(column string, descending bool) (string, []interface{}) {
	op := ">"
	if descending {
		op = "<"
	}
	return fmt.Sprintf("%s %s ?", column, op), []interface{}{c.LastID}
}
