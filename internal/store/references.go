package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/lherron/cattree/internal/domain"
	"github.com/lherron/cattree/internal/events"
)

// Dependent collections map to tables and fields to columns. Names come from
// configuration, so they are checked before being quoted into SQL.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReferenceStore counts and rewrites rows in dependent tables.
type ReferenceStore struct {
	store *Store
}

var _ ReferenceRepository = (*ReferenceStore)(nil)

func quoteDependent(dep domain.Dependent) (table, column string, err error) {
	if !identPattern.MatchString(dep.Collection) || !identPattern.MatchString(dep.Field) {
		return "", "", domain.Errorf(domain.ErrInvalidInput, dep.String(), "dependent names must be identifiers")
	}
	return `"` + dep.Collection + `"`, `"` + dep.Field + `"`, nil
}

func countRefs(ctx context.Context, tx *sql.Tx, dep domain.Dependent, id string) (int, error) {
	table, column, err := quoteDependent(dep)
	if err != nil {
		return 0, err
	}
	var count int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s references: %w", dep, err)
	}
	return count, nil
}

// CountReferences returns how many rows of dep point at id.
func (rs *ReferenceStore) CountReferences(ctx context.Context, dep domain.Dependent, id string) (int, error) {
	table, column, err := quoteDependent(dep)
	if err != nil {
		return 0, err
	}
	var count int
	err = rs.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s references: %w", dep, err)
	}
	return count, nil
}

// RewriteReferences points every row of dep at toID instead of fromID. Rows are
// rewritten in batches, each in its own transaction with its own
// reference.rewritten event. A crash between batches leaves only rows still
// pointing at fromID, so calling again finishes the job. Returns 0 when no
// rows remain.
func (rs *ReferenceStore) RewriteReferences(ctx context.Context, actor string, dep domain.Dependent, fromID, toID string) (int64, error) {
	if fromID == toID {
		return 0, domain.Errorf(domain.ErrSameNode, fromID, "cannot rewrite references onto the same node")
	}
	table, column, err := quoteDependent(dep)
	if err != nil {
		return 0, err
	}

	query := `UPDATE ` + table + ` SET ` + column + ` = ?
		WHERE rowid IN (SELECT rowid FROM ` + table + ` WHERE ` + column + ` = ? LIMIT ?)`

	batch := rs.store.opts.BatchSize
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var n int64
		err := rs.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
			res, err := tx.ExecContext(ctx, query, toID, fromID, batch)
			if err != nil {
				return fmt.Errorf("failed to rewrite %s references: %w", dep, err)
			}
			n, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			if n == 0 {
				return nil
			}
			return ew.LogReferencesRewritten(tx, actor, dep, fromID, toID, n)
		})
		if err != nil {
			return total, err
		}

		total += n
		if n < int64(batch) {
			return total, nil
		}
	}
}
