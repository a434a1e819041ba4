// Package app assembles the planner engine from configuration: storage
// backend, write lock, semantic resolver, application handlers and health
// checks. Both the API server and the operator CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/brainamp/planner-engine/config"
	"github.com/brainamp/planner-engine/internal/application/command"
	"github.com/brainamp/planner-engine/internal/application/query"
	"github.com/brainamp/planner-engine/internal/domain/course"
	"github.com/brainamp/planner-engine/internal/domain/planner"
	"github.com/brainamp/planner-engine/internal/infrastructure/external/resolver"
	"github.com/brainamp/planner-engine/internal/infrastructure/persistence/memory"
	"github.com/brainamp/planner-engine/internal/infrastructure/persistence/postgres"
	redisstore "github.com/brainamp/planner-engine/internal/infrastructure/persistence/redis"
	"github.com/brainamp/planner-engine/internal/infrastructure/persistence/sqlite"
	"github.com/brainamp/planner-engine/internal/interface/http/handlers"
	"github.com/brainamp/planner-engine/pkg/circuitbreaker"
	"github.com/brainamp/planner-engine/pkg/logger"
	"github.com/brainamp/planner-engine/pkg/timeutil"
)

// ModuleWriter loads course modules into the configured backend.
type ModuleWriter interface {
	Upsert(ctx context.Context, userID string, m course.Module) error
}

// App holds the assembled components.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Directory planner.UserDirectory
	Modules   course.Store
	Seeder    ModuleWriter
	Documents *planner.DocumentStore

	PlannerItems     *command.PlannerItemsHandler
	UpdateModuleDate *command.UpdateModuleDateHandler
	Interpreter      *command.Interpreter
	Resolver         *query.ModuleResolver
	Calendar         *query.CalendarHandler
	ListModules      *query.ListModulesHandler

	Health *handlers.CompositeHealthChecker

	migrator *postgres.Migrator
	closers  []func()
}

// New builds the application. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Log:    log,
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	loc := cfg.App.Location
	if loc == nil {
		loc = time.UTC
	}
	a.closers = append(a.closers, timeutil.SetClock(func() time.Time { return time.Now().In(loc) }))

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Documents = planner.NewDocumentStore(a.Directory, locker)

	semantic, err := a.openResolver()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.PlannerItems = command.NewPlannerItemsHandler(a.Documents, log)
	a.UpdateModuleDate = command.NewUpdateModuleDateHandler(a.Modules, log)
	a.Resolver = query.NewModuleResolver(a.Modules, semantic, cfg.Resolver.Timeout, log)
	a.Interpreter = command.NewInterpreter(a.Resolver, a.PlannerItems, a.UpdateModuleDate, log)
	a.Calendar = query.NewCalendarHandler(a.Modules, a.Documents, log)
	a.ListModules = query.NewListModulesHandler(a.Modules)

	return a, nil
}

// ─── Storage ──────────────────────────────────────────────────────────────────

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pgCfg := postgres.DefaultConfig(cfg.Database.URL)
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

		conn, err := postgres.NewConnection(ctx, pgCfg, a.Log)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		a.migrator = postgres.NewMigrator(conn)

		if cfg.Storage.AutoMigrate {
			if err := a.migrator.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}

		modules := postgres.NewCourseModuleRepository(conn)
		a.Directory = postgres.NewUserDirectory(conn)
		a.Modules = modules
		a.Seeder = modules
		a.Health.AddCheck("postgres", handlers.NewPingCheck(conn))
		a.Health.AddAdvisoryCheck("postgres_pool", func(context.Context) error {
			if stats := conn.Stats(); stats.Saturated() {
				return fmt.Errorf("pool saturated: %d/%d connections acquired", stats.Acquired, stats.Max)
			}
			return nil
		})

	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, sqlite.Config{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		}, a.Log)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		modules := db.Modules()
		a.Directory = db.Directory()
		a.Modules = modules
		a.Seeder = modules
		a.Health.AddCheck("sqlite", handlers.NewPingCheck(db))

	case config.StorageMemory:
		modules := memory.NewModuleStore()
		a.Directory = memory.NewUserDirectory()
		a.Modules = modules
		a.Seeder = modules
		a.Log.Warn("using in-memory storage; planner state is lost on restart")

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	a.Log.Info("storage ready", logger.String("driver", cfg.Storage.Driver))
	return nil
}

// ─── Write lock ───────────────────────────────────────────────────────────────

func (a *App) openLocker(ctx context.Context) (planner.Locker, error) {
	cfg := a.Config
	switch cfg.Features.WriteLock {
	case config.LockMutex:
		return planner.NewMutexLocker(), nil

	case config.LockRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Health.AddCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return redisstore.NewPlannerLock(client, cfg.Redis.LeaseTTL, cfg.Redis.PollInterval, a.Log), nil

	default:
		return planner.NopLocker{}, nil
	}
}

// ─── Semantic resolver ────────────────────────────────────────────────────────

func (a *App) openResolver() (course.SemanticResolver, error) {
	cfg := a.Config
	if !cfg.ResolverEnabled() {
		a.Log.Warn("semantic resolver not configured; module references will not resolve")
		return resolver.Disabled(), nil
	}
	if flags := cfg.Features.Flags; flags != nil && !flags.IsEnabled(config.FeatureSemanticResolver, "") {
		a.Log.Info("semantic resolver disabled by feature flag")
		return resolver.Disabled(), nil
	}

	rc := resolver.DefaultConfig(cfg.Resolver.BaseURL, cfg.Resolver.APIKey)
	if cfg.Resolver.Model != "" {
		rc.Model = cfg.Resolver.Model
	}
	rc.RatePerSecond = cfg.Resolver.RatePerSecond
	rc.Burst = cfg.Resolver.Burst

	client, err := resolver.NewClient(rc, a.Log)
	if err != nil {
		return nil, fmt.Errorf("semantic resolver: %w", err)
	}
	a.Health.AddAdvisoryCheck("semantic_resolver", func(context.Context) error {
		if client.Breaker().State() == circuitbreaker.StateOpen {
			return errors.New("circuit open")
		}
		return nil
	})
	return client, nil
}

// ─── Logging ──────────────────────────────────────────────────────────────────

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config, out io.Writer) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = out
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug && opts.Level > logger.LevelDebug {
		opts.Level = logger.LevelDebug
	}
	opts.Console = cfg.Observability.LogFormat == "console"
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}

// ─── Lifecycle ────────────────────────────────────────────────────────────────

// Migrator returns the postgres migrator, or nil for other backends.
func (a *App) Migrator() *postgres.Migrator {
	return a.migrator
}

// CommandAllowed reports whether userID may use free-text commands.
func (a *App) CommandAllowed(userID string) bool {
	flags := a.Config.Features.Flags
	return flags == nil || flags.IsEnabled(config.FeatureCommandInterpreter, userID)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
