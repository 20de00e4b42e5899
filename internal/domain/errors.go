package domain

import (
	"errors"
	"fmt"
)

// Validation errors: rejected before any write, safe to retry with corrected input.
var (
	ErrDepthExceeded    = errors.New("depth exceeded")
	ErrDuplicateCode    = errors.New("duplicate code")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrSameNode         = errors.New("same node")
	ErrWouldCreateCycle = errors.New("would create cycle")
	ErrInvalidInput     = errors.New("invalid input")
	ErrParentInactive   = errors.New("parent inactive")
	ErrInactiveTarget   = errors.New("inactive target")
)

// Precondition errors: the caller must perform a prerequisite step first.
var (
	ErrHasChildren   = errors.New("has children")
	ErrHasReferences = errors.New("has references")
	ErrTypeNotEmpty  = errors.New("type not empty")
	ErrSystemType    = errors.New("system type")
)

// Integrity errors: pre-existing corruption reported by tree validation.
var (
	ErrOrphanParent  = errors.New("orphan parent")
	ErrLevelMismatch = errors.New("level mismatch")
	ErrCycleDetected = errors.New("cycle detected")
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Error carries a failure kind together with the node (or type key) it concerns.
// Match the kind with errors.Is(err, domain.ErrHasChildren).
type Error struct {
	Kind   error
	ID     string
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.ID != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.ID)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind about id
func Errorf(kind error, id string, format string, args ...any) *Error {
	return &Error{Kind: kind, ID: id, Detail: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing node or type
func NotFound(what, id string) *Error {
	return &Error{Kind: ErrNotFound, ID: id, Detail: what}
}

// IsValidation reports whether err was rejected synchronously on input grounds
func IsValidation(err error) bool {
	for _, k := range []error{ErrDepthExceeded, ErrDuplicateCode, ErrTypeMismatch, ErrSameNode,
		ErrWouldCreateCycle, ErrInvalidInput, ErrParentInactive, ErrInactiveTarget} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsPrecondition reports whether err blocks an operation that would lose data
func IsPrecondition(err error) bool {
	for _, k := range []error{ErrHasChildren, ErrHasReferences, ErrTypeNotEmpty, ErrSystemType} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
