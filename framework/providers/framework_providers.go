// Package providers holds the framework's core service providers. The
// application registers them in order during bootstrap.
package providers

import (
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/km-arc/go-foundation/framework/cache"
	"github.com/km-arc/go-foundation/framework/config"
	"github.com/km-arc/go-foundation/framework/container"
	"github.com/km-arc/go-foundation/framework/database"
	"github.com/km-arc/go-foundation/framework/http/middleware"
	"github.com/km-arc/go-foundation/framework/kernel"
	"github.com/km-arc/go-foundation/framework/log"
	"github.com/km-arc/go-foundation/framework/routing"
	"github.com/km-arc/go-foundation/framework/schedule"
	"github.com/km-arc/go-foundation/framework/view"
)

func configOf(c *container.Container) *config.Config {
	return container.MustResolve[*config.Config](c, "config")
}

func loggerOf(c *container.Container) *zap.Logger {
	return container.MustResolve[*zap.Logger](c, "log")
}

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the loaded configuration.
//
// Bound abstracts:
//   - "config"  → *config.Config (aliases "configuration" and its type key)
//
// Laravel equivalent:
//
//	// Illuminate\Foundation\Bootstrap\LoadConfiguration
//	$app->instance('config', $config = new Repository($items));
type ConfigServiceProvider struct {
	container.BaseProvider
	Config *config.Config
}

func (p *ConfigServiceProvider) Register(app *container.Container) {
	app.Instance("config", p.Config)
	app.Alias("config", "configuration")
	app.Alias("config", container.TypeKey((*config.Config)(nil)))
}

// ── LogServiceProvider ────────────────────────────────────────────────────────

// LogServiceProvider registers the zap logger.
//
// Bound abstracts:
//   - "log"  → *zap.Logger (alias: its type key, so *zap.Logger fields autowire)
type LogServiceProvider struct {
	container.BaseProvider
}

func (p *LogServiceProvider) Register(app *container.Container) {
	app.Singleton("log", container.Closure(func(c *container.Container, _ container.Params) (any, error) {
		cfg := configOf(c)
		return log.New(cfg.Log, cfg.App.Env)
	}))
	app.Alias("log", container.TypeKey((*zap.Logger)(nil)))
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router and loads the routes,
// from the route cache when there is one.
//
// Bound abstracts:
//   - "router"    → *routing.Router
//   - "throttle"  → *middleware.Throttle
//
// Route middleware:
//   - "throttle:max,minutes"
//   - groups "web" (empty) and "api" (throttle:60,1)
//
// Laravel equivalent:
//
//	// Illuminate\Routing\RoutingServiceProvider
//	$app->singleton('router', fn($app) => new Router($app['events'], $app));
type RoutingServiceProvider struct {
	container.BaseProvider

	// CachePath is the route cache file.
	CachePath string

	// Routes returns the route definitions. It is called at boot when no
	// route cache exists.
	Routes func() []func(*routing.Router)
}

func (p *RoutingServiceProvider) Register(app *container.Container) {
	app.Singleton("router", func(_ *container.Container) any {
		return routing.New(routing.WithContainer(app))
	})
	app.Alias("router", container.TypeKey((*routing.Router)(nil)))
	app.Singleton("throttle", func(_ *container.Container) any {
		return middleware.NewThrottle()
	})
}

func (p *RoutingServiceProvider) Boot(app *container.Container) {
	router := container.MustResolve[*routing.Router](app, "router")
	throttle := container.MustResolve[*middleware.Throttle](app, "throttle")
	router.AliasMiddleware("throttle", throttle.Factory())
	router.MiddlewareGroup("web")
	router.MiddlewareGroup("api", "throttle:60,1")

	if err := p.loadRoutes(router); err != nil {
		panic(err)
	}

	if app.Bound("view") {
		views := container.MustResolve[*view.Engine](app, "view")
		views.Funcs(template.FuncMap{"route": RouteFunc(router)})
	}
}

func (p *RoutingServiceProvider) loadRoutes(router *routing.Router) error {
	if p.CachePath != "" {
		err := router.LoadCache(p.CachePath)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load route cache: %w", err)
		}
	}
	if p.Routes == nil {
		return nil
	}
	for _, define := range p.Routes() {
		define(router)
	}
	return nil
}

// RouteFunc is the "route" template function: {{route "users.show" "id" "7"}}.
func RouteFunc(router *routing.Router) func(name string, pairs ...string) (string, error) {
	return func(name string, pairs ...string) (string, error) {
		if len(pairs)%2 != 0 {
			return "", fmt.Errorf("route %q: parameters must be key/value pairs", name)
		}
		params := make(map[string]string, len(pairs)/2)
		for i := 0; i < len(pairs); i += 2 {
			params[pairs[i]] = pairs[i+1]
		}
		return router.URL(name, params)
	}
}

// ── ViewServiceProvider ───────────────────────────────────────────────────────

// ViewServiceProvider registers the template engine.
//
// Bound abstracts:
//   - "view"  → *view.Engine
//
// Configuration read from "config": view.paths, view.ext, view.compiled.
//
// Laravel equivalent:
//
//	// Illuminate\View\ViewServiceProvider
//	$app->singleton('view', fn($app) => new Factory(...));
type ViewServiceProvider struct {
	container.BaseProvider
}

func (p *ViewServiceProvider) Register(app *container.Container) {
	app.Singleton("view", func(c *container.Container) any {
		return view.New(configOf(c).View)
	})
	app.Alias("view", container.TypeKey((*view.Engine)(nil)))
}

// ── CacheServiceProvider ──────────────────────────────────────────────────────

// CacheServiceProvider registers the cache manager.
//
// Bound abstracts:
//   - "cache"        → *cache.Manager
//   - "cache.store"  → cache.Store (the default store)
type CacheServiceProvider struct {
	container.BaseProvider
}

func (p *CacheServiceProvider) Register(app *container.Container) {
	app.Singleton("cache", func(c *container.Container) any {
		cfg := configOf(c)
		return cache.NewManager(cfg.Cache, cfg.Redis)
	})
	app.Alias("cache", container.TypeKey((*cache.Manager)(nil)))
	app.Singleton("cache.store", container.Closure(func(c *container.Container, _ container.Params) (any, error) {
		return container.MustResolve[*cache.Manager](c, "cache").Default()
	}))
}

// ── DatabaseServiceProvider ───────────────────────────────────────────────────

// DatabaseServiceProvider registers the connection and the migration
// services. It is deferred: nothing connects until one of them is needed.
//
// Bound abstracts:
//   - "db"                    → *sql.DB
//   - "migration.repository"  → *database.Repository
//   - "migrator"              → *database.Migrator
//   - "migration.creator"     → *database.Creator
type DatabaseServiceProvider struct {
	container.BaseProvider
	MigrationPath string
}

func (p *DatabaseServiceProvider) IsDeferred() bool { return true }

func (p *DatabaseServiceProvider) Provides() []string {
	return []string{"db", "migration.repository", "migrator", "migration.creator"}
}

func (p *DatabaseServiceProvider) Register(app *container.Container) {
	app.Singleton("db", container.Closure(func(c *container.Container, _ container.Params) (any, error) {
		return database.Open(configOf(c).DB)
	}))
	app.Singleton("migration.repository", container.Closure(func(c *container.Container, _ container.Params) (any, error) {
		db, err := container.Resolve[*sql.DB](c, "db")
		if err != nil {
			return nil, err
		}
		return database.NewRepository(db, configOf(c).DB.MigrationTable), nil
	}))
	app.Singleton("migrator", container.Closure(func(c *container.Container, _ container.Params) (any, error) {
		db, err := container.Resolve[*sql.DB](c, "db")
		if err != nil {
			return nil, err
		}
		repo, err := container.Resolve[*database.Repository](c, "migration.repository")
		if err != nil {
			return nil, err
		}
		return database.NewMigrator(db, repo, p.MigrationPath, loggerOf(c)), nil
	}))
	app.Alias("db", container.TypeKey((*sql.DB)(nil)))
	app.Bind("migration.creator", func(_ *container.Container) any {
		return database.NewCreator(p.MigrationPath)
	})
}

// ── ScheduleServiceProvider ───────────────────────────────────────────────────

// ScheduleServiceProvider registers the task schedule.
//
// Bound abstracts:
//   - "schedule"  → *schedule.Schedule
type ScheduleServiceProvider struct {
	container.BaseProvider

	// Definitions returns the functions that add scheduled events.
	Definitions func() []func(*schedule.Schedule) error
}

func (p *ScheduleServiceProvider) Register(app *container.Container) {
	app.Singleton("schedule", container.Closure(func(c *container.Container, _ container.Params) (any, error) {
		s := schedule.New(loggerOf(c))
		if p.Definitions == nil {
			return s, nil
		}
		for _, define := range p.Definitions() {
			if err := define(s); err != nil {
				return nil, err
			}
		}
		return s, nil
	}))
}

// ── ExceptionServiceProvider ──────────────────────────────────────────────────

// ExceptionServiceProvider registers the exception handler.
//
// Bound abstracts:
//   - "exceptions"  → *kernel.ExceptionHandler
type ExceptionServiceProvider struct {
	container.BaseProvider
}

func (p *ExceptionServiceProvider) Register(app *container.Container) {
	app.Singleton("exceptions", func(c *container.Container) any {
		var views kernel.Views
		if c.Bound("view") {
			views = container.MustResolve[*view.Engine](c, "view")
		}
		return kernel.NewExceptionHandler(loggerOf(c), configOf(c).App.Debug, views)
	})
}

// ── HTTPKernelServiceProvider ─────────────────────────────────────────────────

// HTTPKernelServiceProvider registers the HTTP kernel with the global
// middleware: request ids, request logging, Prometheus metrics served on
// /metrics.
//
// Bound abstracts:
//   - "metrics"      → *middleware.Metrics
//   - "http.kernel"  → *kernel.Kernel
type HTTPKernelServiceProvider struct {
	container.BaseProvider

	// App is bootstrapped before the first request.
	App kernel.Bootstrapper

	// FallbackViews, when set, serves unmatched GET requests from views
	// below this prefix.
	FallbackViews string
}

func (p *HTTPKernelServiceProvider) Register(app *container.Container) {
	app.Singleton("metrics", func(c *container.Container) any {
		return middleware.NewMetrics(MetricsNamespace(configOf(c).App.Name))
	})
	app.Singleton("http.kernel", func(c *container.Container) any {
		router := container.MustResolve[*routing.Router](c, "router")
		exceptions := container.MustResolve[*kernel.ExceptionHandler](c, "exceptions")
		metrics := container.MustResolve[*middleware.Metrics](c, "metrics")

		k := kernel.New(p.App, router, exceptions)
		k.PushMiddleware(
			middleware.RequestID,
			middleware.RequestLogger(loggerOf(c)),
			metrics.Middleware,
			metrics.Expose("/metrics"),
		)
		if p.FallbackViews != "" && c.Bound("view") {
			k.FallbackToViews(container.MustResolve[*view.Engine](c, "view"), p.FallbackViews)
		}
		return k
	})
}

var nonMetric = regexp.MustCompile(`[^a-z0-9_]+`)

// MetricsNamespace turns an application name into a Prometheus namespace:
// "Go Foundation" becomes "go_foundation".
func MetricsNamespace(name string) string {
	ns := strings.Trim(nonMetric.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if ns == "" || (ns[0] >= '0' && ns[0] <= '9') {
		ns = "app_" + ns
	}
	return strings.TrimSuffix(ns, "_")
}
