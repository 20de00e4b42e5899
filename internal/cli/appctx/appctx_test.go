package appctx

import (
	"path/filepath"
	"testing"

	"github.com/lherron/cattree/internal/db"
	"github.com/spf13/cobra"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("db", "", "Database path")
	cmd.Flags().String("as", "", "Actor")
	cmd.Flags().StringP("output", "o", "", "Output format")
	return cmd
}

func isolate(t *testing.T, dbPath string) {
	t.Helper()
	t.Setenv("CATTREE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CATTREE_DB_PATH", dbPath)
	t.Setenv("CATTREE_REDIS_ADDR", "")
	t.Setenv("CATTREE_ACTOR", "")
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	isolate(t, filepath.Join(t.TempDir(), "test.db"))

	app, err := Bootstrap(testCommand(), Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil || app.Logger == nil {
		t.Error("Config and Logger should be set")
	}
	if app.DB != nil || app.Store != nil {
		t.Error("DB should be nil when NeedsDB is false")
	}
}

func TestBootstrap_WithDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	database.Close()
	isolate(t, dbPath)

	cmd := testCommand()
	cmd.Flags().Set("as", "editor")

	app, err := Bootstrap(cmd, WithLock())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Store == nil || app.Catalog == nil || app.Registry == nil || app.Cache == nil {
		t.Fatal("services should be wired when NeedsDB is true")
	}
	if app.Locker == nil {
		t.Error("Locker should be set when NeedsLock is true")
	}
	if app.Actor != "editor" {
		t.Errorf("expected actor from --as, got %q", app.Actor)
	}
}

func TestBootstrap_PendingMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	isolate(t, dbPath)

	_, err := Bootstrap(testCommand(), DefaultOptions())
	if err == nil {
		t.Fatal("expected error for unmigrated database")
	}
}

func TestRenderer_OutputFlag(t *testing.T) {
	isolate(t, filepath.Join(t.TempDir(), "test.db"))
	cmd := testCommand()
	cmd.Flags().Set("output", "json")

	app, err := Bootstrap(cmd, Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	r, err := app.Renderer(cmd)
	if err != nil {
		t.Fatalf("Renderer failed: %v", err)
	}
	if r.Format() != "json" {
		t.Errorf("expected json format, got %s", r.Format())
	}
}
