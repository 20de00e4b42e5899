package domain

import (
	"time"
)

// MaxLevel is the deepest level a category node may live at.
const MaxLevel = 3

// Resource types recorded in the event log
const (
	ResourceNode      = "category_node"
	ResourceType      = "category_type"
	ResourceReference = "reference"
)

// Node represents one entry in a category tree
type Node struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code,omitempty" db:"code"`
	Type      string    `json:"type" db:"type"`
	Level     int       `json:"level" db:"level"`
	ParentID  *string   `json:"parent_id,omitempty" db:"parent_id"`
	Order     int       `json:"order" db:"sort_order"`
	Active    bool      `json:"active" db:"active"`
	ETag      int64     `json:"etag" db:"etag"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsRoot reports whether the node sits at level 1
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Parent returns the parent id or "" for roots
func (n *Node) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// HasCode reports whether the node carries an external classification code
func (n *Node) HasCode() bool {
	return n.Code != ""
}

// CategoryType is a classification namespace; each type owns an independent tree.
// Key is referenced by every node's Type field and never changes.
type CategoryType struct {
	Key       string    `json:"key" db:"key"`
	Label     string    `json:"label" db:"label"`
	Order     int       `json:"order" db:"sort_order"`
	IsSystem  bool      `json:"is_system" db:"is_system"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Dependent names a foreign-key field in an external collection that holds
// category node ids (e.g. Recipe.category_id).
type Dependent struct {
	Collection string `json:"collection" yaml:"collection"`
	Field      string `json:"field" yaml:"field"`
}

func (d Dependent) String() string {
	return d.Collection + "." + d.Field
}

// DefaultDependents are the collections that reference category nodes out of the box
func DefaultDependents() []Dependent {
	return []Dependent{
		{Collection: "Recipe", Field: "category_id"},
		{Collection: "Ingredient", Field: "category_id"},
	}
}

// DefaultTypes are the system namespaces seeded on init
func DefaultTypes() []CategoryType {
	return []CategoryType{
		{Key: "ingredientes", Label: "Ingredientes", Order: 1, IsSystem: true},
		{Key: "receitas", Label: "Receitas", Order: 2, IsSystem: true},
		{Key: "contas", Label: "Contas", Order: 3, IsSystem: true},
	}
}

// Event represents an entry in the audit log
type Event struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Actor        *string   `json:"actor,omitempty" db:"actor"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   *string   `json:"resource_id,omitempty" db:"resource_id"`
	EventType    string    `json:"event_type" db:"event_type"`
	ETag         *int64    `json:"etag,omitempty" db:"etag"`
	Payload      *string   `json:"payload,omitempty" db:"payload"` // JSON
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
