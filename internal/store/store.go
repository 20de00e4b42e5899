// Package store provides a persistence layer that abstracts database operations,
// automatically handling etag management, timestamps, and event logging.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lherron/cattree/internal/db"
	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/events"
	"github.com/mattn/go-sqlite3"
)

// DefaultBatchSize bounds how many dependent rows one rewrite transaction touches.
const DefaultBatchSize = 400

// NodeRepository is the persistence contract for category nodes.
type NodeRepository interface {
	Create(ctx context.Context, actor string, params CreateParams) (*domain.Node, error)
	Get(ctx context.Context, id string) (*domain.Node, error)
	ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error)
	Update(ctx context.Context, actor, id string, params UpdateParams) (*domain.Node, error)
	Delete(ctx context.Context, actor, id string) error
	Retype(ctx context.Context, actor, rootID, newType string) (int, error)
}

// ReferenceRepository counts and rewrites dependent records that point at nodes.
type ReferenceRepository interface {
	CountReferences(ctx context.Context, dep domain.Dependent, id string) (int, error)
	RewriteReferences(ctx context.Context, actor string, dep domain.Dependent, fromID, toID string) (int64, error)
}

// TypeRepository persists category types.
type TypeRepository interface {
	List(ctx context.Context) ([]domain.CategoryType, error)
	Get(ctx context.Context, key string) (*domain.CategoryType, error)
	Create(ctx context.Context, actor string, t domain.CategoryType) (*domain.CategoryType, error)
	UpdateLabel(ctx context.Context, actor, key, label string) (*domain.CategoryType, error)
	Delete(ctx context.Context, actor, key string) error
}

// CreateParams contains parameters for creating a node.
type CreateParams struct {
	ID       string // empty generates a new uuid
	Type     string
	Name     string
	ParentID *string // nil creates a root
	Code     string
	Order    *int // nil appends after the last sibling
	// Inactive creates the node deactivated. Only inactive nodes may be
	// created under an inactive parent.
	Inactive bool
}

// ParentChange moves a node. A nil ParentID promotes the node to a root.
type ParentChange struct {
	ParentID *string
}

// UpdateParams contains the optional fields of an update. IfMatch > 0 enables
// the etag check.
type UpdateParams struct {
	Name    *string
	Code    *string
	Order   *int
	Active  *bool
	Parent  *ParentChange
	IfMatch int64
}

// Options configures a Store.
type Options struct {
	Dependents []domain.Dependent
	BatchSize  int
}

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db   *db.DB
	opts Options

	Nodes *NodeStore
	Refs  *ReferenceStore
	Types *TypeStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB, opts Options) *Store {
	if opts.Dependents == nil {
		opts.Dependents = domain.DefaultDependents()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	s := &Store{db: database, opts: opts}
	s.Nodes = &NodeStore{store: s}
	s.Refs = &ReferenceStore{store: s}
	s.Types = &TypeStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Dependents returns the configured dependent collections.
func (s *Store) Dependents() []domain.Dependent {
	return s.opts.Dependents
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapConstraintError(err)
	}
	return nil
}

// mapConstraintError turns a violation of the active-code unique index into
// DuplicateCode. It only fires when a concurrent writer slipped past the
// in-transaction check.
func mapConstraintError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return domain.Errorf(domain.ErrDuplicateCode, "", "%v", sqliteErr)
		case sqlite3.ErrConstraintPrimaryKey:
			return domain.Errorf(domain.ErrAlreadyExists, "", "%v", sqliteErr)
		}
	}
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
