package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lherron/cattree/internal/db"
)

// TempDB creates a temporary migrated SQLite database for testing
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// InsertRefs inserts n rows into a dependent table pointing at categoryID and
// returns their ids.
func InsertRefs(t *testing.T, database *db.DB, table, categoryID string, n int) []string {
	t.Helper()
	tx, err := database.Begin()
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = uuid.NewString()
		_, err := tx.Exec(fmt.Sprintf(`INSERT INTO %q (id, name, category_id) VALUES (?, ?, ?)`, table),
			ids[i], fmt.Sprintf("%s %d", table, i), categoryID)
		if err != nil {
			tx.Rollback()
			t.Fatalf("Failed to insert %s row: %v", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return ids
}

// CountRows counts rows of table whose category_id is categoryID
func CountRows(t *testing.T, database *db.DB, table, categoryID string) int {
	t.Helper()
	var n int
	err := database.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %q WHERE category_id = ?`, table), categoryID).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to count %s rows: %v", table, err)
	}
	return n
}

// WriteFile writes content to a file in dir
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertErrorIs asserts that err matches target via errors.Is
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("Expected error %v, got: %v", target, err)
	}
}

// AssertEqual asserts that two values are equal
func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("Expected %v, got %v", expected, actual)
	}
}

// AssertStringContains asserts that a string contains a substring
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}
