package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// UUIDv4Regex validates lowercase UUIDv4 format
var UUIDv4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

var (
	codePattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	typeKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	maxNameLen     = 255
)

// ValidateUUID validates a UUID v4 format (lowercase with hyphens)
func ValidateUUID(uuid string) error {
	if !UUIDv4Regex.MatchString(uuid) {
		return fmt.Errorf("invalid UUID: must be lowercase UUIDv4 format (e.g., 550e8400-e29b-41d4-a716-446655440000)")
	}
	return nil
}

// ValidateName validates a node display name
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return Errorf(ErrInvalidInput, "", "name cannot be empty")
	}
	if len(name) > maxNameLen {
		return Errorf(ErrInvalidInput, "", "name exceeds maximum length of %d bytes", maxNameLen)
	}
	return nil
}

// ValidateCode validates an external classification code; empty is allowed
func ValidateCode(code string) error {
	if code == "" {
		return nil
	}
	if !codePattern.MatchString(code) {
		return Errorf(ErrInvalidInput, "", "invalid code %q: must contain only [A-Za-z0-9._-]", code)
	}
	return nil
}

// ValidateTypeKey validates a category type key such as "receitas_-_base"
func ValidateTypeKey(key string) error {
	if !typeKeyPattern.MatchString(key) {
		return Errorf(ErrInvalidInput, key, "type key must be lowercase and contain only [a-z0-9_-]")
	}
	return nil
}

// ValidateLevel validates a node level
func ValidateLevel(level int) error {
	if level < 1 || level > MaxLevel {
		return fmt.Errorf("invalid level: must be between 1 and %d", MaxLevel)
	}
	return nil
}

// ChildLevel computes the level of a node created under parent (nil for roots).
// It rejects children of inactive parents, parents of another type, and depth overflow.
func ChildLevel(nodeType string, parent *Node) (int, error) {
	if parent == nil {
		return 1, nil
	}
	if parent.Type != nodeType {
		return 0, Errorf(ErrTypeMismatch, parent.ID, "parent type %q, node type %q", parent.Type, nodeType)
	}
	if !parent.Active {
		return 0, Errorf(ErrParentInactive, parent.ID, "cannot attach under an inactive node")
	}
	level := parent.Level + 1
	if level > MaxLevel {
		return 0, Errorf(ErrDepthExceeded, parent.ID, "parent is at level %d", parent.Level)
	}
	return level, nil
}

// ETagMismatchError is returned when an etag doesn't match
type ETagMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *ETagMismatchError) Error() string {
	return fmt.Sprintf("etag mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// CheckETag verifies etag matches if ifMatch > 0
func CheckETag(ifMatch, actual int64) error {
	if ifMatch > 0 && ifMatch != actual {
		return &ETagMismatchError{Expected: ifMatch, Actual: actual}
	}
	return nil
}
