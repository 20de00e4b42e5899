// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logging, database opening and the wiring of
// the store, tree cache and services so each command only does its own work.
package appctx

import (
	"context"
	"fmt"

	"github.com/lherron/cattree/internal/catalog"
	"github.com/lherron/cattree/internal/config"
	"github.com/lherron/cattree/internal/db"
	"github.com/lherron/cattree/internal/lock"
	"github.com/lherron/cattree/internal/logging"
	"github.com/lherron/cattree/internal/registry"
	"github.com/lherron/cattree/internal/render"
	"github.com/lherron/cattree/internal/store"
	"github.com/lherron/cattree/internal/tree"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// App holds the shared application context for commands.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	// Actor is recorded on every event written by this process
	Actor string

	// The fields below are nil when NeedsDB is false
	DB       *db.DB
	Store    *store.Store
	Cache    *tree.Cache
	Catalog  *catalog.Catalog
	Registry *registry.Registry

	// Locker serializes merges per type; nil unless NeedsLock
	Locker lock.Locker

	redis *redis.Client
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// Renderer returns a renderer for cmd's stdout honoring --output
func (a *App) Renderer(cmd *cobra.Command) (*render.Renderer, error) {
	format := a.Config.Output
	if f := cmd.Flag("output"); f != nil && f.Changed {
		format = f.Value.String()
	}
	parsed, err := render.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: parsed}), nil
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB opens and wires the database. The schema must be current.
	NeedsDB bool

	// NeedsLock builds a per-type locker: Redis when CATTREE_REDIS_ADDR is
	// set, in-process otherwise.
	NeedsLock bool
}

// DefaultOptions returns default options (DB required, no lock).
func DefaultOptions() Options {
	return Options{NeedsDB: true}
}

// WithLock returns options that require the DB and a merge lock.
func WithLock() Options {
	return Options{NeedsDB: true, NeedsLock: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	if dbFlag := cmd.Flag("db"); dbFlag != nil {
		if dbPath := dbFlag.Value.String(); dbPath != "" {
			app.Config.DBPath = dbPath
		}
	}

	app.Actor = cfg.GetActor()
	if asFlag := cmd.Flag("as"); asFlag != nil {
		if as := asFlag.Value.String(); as != "" {
			app.Actor = as
		}
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	app.Logger = logger.With(zap.String("actor", app.Actor))

	if opts.NeedsDB {
		database, err := db.Open(app.Config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		_, pending, err := database.MigrationStatus()
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to check migration status: %w", err)
		}
		if len(pending) > 0 {
			database.Close()
			return nil, fmt.Errorf("database requires migration: %d pending migration(s). Run 'cattreeadm migrate' to update", len(pending))
		}

		app.DB = database
		app.Store = store.New(database, store.Options{
			Dependents: cfg.Dependents,
			BatchSize:  cfg.BatchSize,
		})
		app.Cache = tree.NewCache(app.Store.Nodes)
		app.Catalog = catalog.New(app.Store.Nodes, app.Cache, app.Actor)
		app.Registry = registry.New(app.Store.Types, app.Store.Nodes, app.Actor)
	}

	if opts.NeedsLock {
		if cfg.RedisAddr == "" {
			app.Locker = lock.NewLocal()
		} else {
			client, err := lock.Connect(Context(cmd), cfg.RedisAddr, cfg.RedisPassword)
			if err != nil {
				app.Close()
				return nil, err
			}
			app.redis = client
			app.Locker = lock.NewRedis(client, 0, app.Logger)
		}
	}

	return app, nil
}

// Context returns cmd's context, or Background when the command was run
// without one.
func Context(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
