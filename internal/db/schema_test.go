package db_test

import (
	"path/filepath"
	"testing"

	"github.com/lherron/cattree/internal/db"
)

func migratedDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("could not migrate: %v", err)
	}
	return database
}

func TestSchema_LevelParentCheck(t *testing.T) {
	database := migratedDB(t)

	// A root must not carry a parent and a child must carry one
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, type, level) VALUES ('r1', 'Root', 'receitas', 1)`); err != nil {
		t.Fatalf("valid root rejected: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, type, level) VALUES ('c1', 'Child', 'receitas', 2)`); err == nil {
		t.Error("level 2 without parent should violate the check constraint")
	}
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, type, level, parent_id) VALUES ('c2', 'Child', 'receitas', 4, 'r1')`); err == nil {
		t.Error("level 4 should violate the check constraint")
	}
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, type, level, parent_id) VALUES ('c3', 'Child', 'receitas', 2, 'missing')`); err == nil {
		t.Error("unknown parent should violate the foreign key")
	}
}

func TestSchema_ActiveCodeUniquePerTypeAndLevel(t *testing.T) {
	database := migratedDB(t)

	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, code, type, level) VALUES ('a', 'ROTISSERIA', '017', 'receitas', 1)`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, code, type, level) VALUES ('b', 'Rotisseria', '017', 'receitas', 1)`); err == nil {
		t.Error("second active node with the same code should be rejected")
	}
	// Same code in another type is fine
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, code, type, level) VALUES ('c', 'Rotisseria', '017', 'ingredientes', 1)`); err != nil {
		t.Errorf("same code in another type rejected: %v", err)
	}
	// Inactive nodes do not hold the code
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, code, type, level, active) VALUES ('d', 'Old', '017', 'receitas', 1, 0)`); err != nil {
		t.Errorf("inactive duplicate code rejected: %v", err)
	}
}

func TestSchema_DependentTables(t *testing.T) {
	database := migratedDB(t)

	for _, table := range []string{"Recipe", "Ingredient", "category_types", "event_log"} {
		ok, err := database.TableExists(table)
		if err != nil {
			t.Fatalf("TableExists(%s): %v", table, err)
		}
		if !ok {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestIntegrity(t *testing.T) {
	database := migratedDB(t)

	problems, err := database.Integrity()
	if err != nil {
		t.Fatalf("Integrity: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("fresh database reported problems: %v", problems)
	}

	// Dangling parent written with enforcement off
	if _, err := database.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
		t.Fatal(err)
	}
	if _, err := database.Exec(`INSERT INTO category_nodes (id, name, type, level, parent_id) VALUES ('c1', 'Orphan', 'receitas', 2, 'gone')`); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}

	problems, err = database.Integrity()
	if err != nil {
		t.Fatalf("Integrity: %v", err)
	}
	if len(problems) != 1 {
		t.Errorf("expected one foreign key problem, got %v", problems)
	}
}
