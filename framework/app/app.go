// Package app is the application: the container, its service providers,
// the bootstrap sequence and the well-known paths of a project.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-foundation/framework/cache"
	"github.com/km-arc/go-foundation/framework/config"
	"github.com/km-arc/go-foundation/framework/container"
	"github.com/km-arc/go-foundation/framework/database"
	"github.com/km-arc/go-foundation/framework/kernel"
	"github.com/km-arc/go-foundation/framework/providers"
	"github.com/km-arc/go-foundation/framework/routing"
	"github.com/km-arc/go-foundation/framework/schedule"
	"github.com/km-arc/go-foundation/framework/view"
)

// FrameworkVersion is reported by Version and the console.
const FrameworkVersion = "0.4.0"

// Application is the top-level application container.
// It embeds the IoC Container and ProviderRegistry so user code can
// call app.Bind(), app.Singleton(), app.Register() directly,
// like $app in Laravel's bootstrap/app.php.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	basePath      string
	envFiles      []string
	config        *config.Config
	fallbackViews string

	mu sync.Mutex // serializes Bootstrap

	state      sync.Mutex
	stage      int
	coreQueued bool
	pending    []container.ServiceProvider
	routes     []func(*routing.Router)
	schedules  []func(*schedule.Schedule) error
}

// Option configures an Application.
type Option func(*Application)

// WithBasePath sets the project root. Defaults to the working directory.
func WithBasePath(path string) Option {
	return func(a *Application) { a.basePath = path }
}

// WithEnvFiles replaces the default ".env". Relative paths are relative to
// the base path.
func WithEnvFiles(files ...string) Option {
	return func(a *Application) { a.envFiles = files }
}

// WithConfig skips loading and uses cfg as is.
func WithConfig(cfg *config.Config) Option {
	return func(a *Application) { a.config = cfg }
}

// WithFallbackViews serves unrouted GET requests from the views below prefix.
func WithFallbackViews(prefix string) Option {
	return func(a *Application) { a.fallbackViews = prefix }
}

// New creates the application. Nothing is loaded until Bootstrap.
func New(opts ...Option) *Application {
	c := container.New()
	a := &Application{
		Container: c,
		Providers: container.NewProviderRegistry(c),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.basePath == "" {
		a.basePath, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(a.basePath); err == nil {
		a.basePath = abs
	}
	return a
}

// ── Bootstrap ─────────────────────────────────────────────────────────────────

type bootstrapper struct {
	name string
	run  func(*Application) error
}

// stageProvidersRegistered is the stage reached once registerProviders ran.
const stageProvidersRegistered = 3

// bootstrappers run in order, once each.
var bootstrappers = []bootstrapper{
	{"load configuration", (*Application).loadConfiguration},
	{"register facades", (*Application).registerFacades},
	{"register providers", (*Application).registerProviders},
	{"boot providers", (*Application).bootProviders},
}

// Bootstrap runs the bootstrappers that have not run yet. A failed
// bootstrapper is retried by the next call.
func (a *Application) Bootstrap() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		a.state.Lock()
		stage := a.stage
		a.state.Unlock()
		if stage == len(bootstrappers) {
			return nil
		}
		b := bootstrappers[stage]
		if err := guard(func() error { return b.run(a) }); err != nil {
			return fmt.Errorf("app: %s: %w", b.name, err)
		}
		a.state.Lock()
		a.stage++
		a.state.Unlock()
	}
}

// HasBeenBootstrapped reports whether every bootstrapper has run.
func (a *Application) HasBeenBootstrapped() bool {
	a.state.Lock()
	defer a.state.Unlock()
	return a.stage == len(bootstrappers)
}

// guard turns a panicking provider into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn()
}

func (a *Application) loadConfiguration() error {
	cfg := a.config
	if cfg == nil {
		loaded, err := a.readConfiguration(a.CachedConfigPath())
		if err != nil {
			return err
		}
		cfg = loaded
	}
	a.resolvePaths(cfg)

	a.config = cfg
	a.Providers.Register(&providers.ConfigServiceProvider{Config: cfg})
	return nil
}

// FreshConfiguration loads the configuration from .env, config/app.yaml and
// the environment, ignoring the configuration cache.
func (a *Application) FreshConfiguration() (*config.Config, error) {
	cfg, err := a.readConfiguration("")
	if err != nil {
		return nil, err
	}
	a.resolvePaths(cfg)
	return cfg, nil
}

func (a *Application) readConfiguration(cacheFile string) (*config.Config, error) {
	files := make([]string, 0, len(a.envFiles))
	for _, f := range a.envFiles {
		files = append(files, a.abs(f))
	}
	if len(files) == 0 {
		files = []string{a.BasePath(".env")}
	}
	return config.LoadWith(config.Options{
		EnvFiles:   files,
		ConfigFile: a.ConfigPath("app.yaml"),
		CacheFile:  cacheFile,
	})
}

// resolvePaths makes the configured directories absolute under the base path.
func (a *Application) resolvePaths(cfg *config.Config) {
	for i, p := range cfg.View.Paths {
		cfg.View.Paths[i] = a.abs(p)
	}
	cfg.View.Compiled = a.abs(cfg.View.Compiled)
	cfg.Cache.Path = a.abs(cfg.Cache.Path)
}

func (a *Application) registerFacades() error {
	container.SetInstance(a.Container)
	a.Instance("app", a)
	return nil
}

// registerProviders drains the provider queue, core providers first. A
// provider leaves the queue only once it has registered, so a retried
// bootstrap picks up at the one that failed.
func (a *Application) registerProviders() error {
	a.state.Lock()
	if !a.coreQueued {
		a.pending = append(a.coreProviders(), a.pending...)
		a.coreQueued = true
	}
	a.state.Unlock()
	for {
		a.state.Lock()
		if len(a.pending) == 0 {
			a.state.Unlock()
			return nil
		}
		p := a.pending[0]
		a.state.Unlock()

		a.Providers.Register(p)

		a.state.Lock()
		a.pending = a.pending[1:]
		a.state.Unlock()
	}
}

func (a *Application) coreProviders() []container.ServiceProvider {
	return []container.ServiceProvider{
		&providers.LogServiceProvider{},
		&providers.ViewServiceProvider{},
		&providers.RoutingServiceProvider{
			CachePath: a.CachedRoutesPath(),
			Routes:    a.routeDefinitions,
		},
		&providers.CacheServiceProvider{},
		&providers.DatabaseServiceProvider{MigrationPath: a.MigrationPath()},
		&providers.ScheduleServiceProvider{Definitions: a.scheduleDefinitions},
		&providers.ExceptionServiceProvider{},
		&providers.HTTPKernelServiceProvider{App: a, FallbackViews: a.fallbackViews},
	}
}

func (a *Application) bootProviders() error {
	a.Providers.Boot()
	return nil
}

// Register adds a service provider. Before bootstrap it is queued behind the
// core providers; afterwards it is registered (and booted) at once.
func (a *Application) Register(provider container.ServiceProvider) {
	a.state.Lock()
	queued := a.stage < stageProvidersRegistered
	if queued {
		a.pending = append(a.pending, provider)
	}
	a.state.Unlock()
	if !queued {
		a.Providers.Register(provider)
	}
}

// ── Definitions ───────────────────────────────────────────────────────────────

// Routes adds route definitions. They are skipped when the routes are
// cached; once booted they apply to the router immediately.
//
//	app.Routes(func(r *routing.Router) {
//	    r.Get("/users/{id}", "UserController@Show").Name("users.show")
//	})
func (a *Application) Routes(fn func(*routing.Router)) *Application {
	a.state.Lock()
	booted := a.stage == len(bootstrappers)
	if !booted {
		a.routes = append(a.routes, fn)
	}
	a.state.Unlock()
	if booted {
		fn(a.Router())
	}
	return a
}

func (a *Application) routeDefinitions() []func(*routing.Router) {
	a.state.Lock()
	defer a.state.Unlock()
	return append(([]func(*routing.Router))(nil), a.routes...)
}

// FreshRouter returns a router holding only the route definitions, whether
// or not the routes are cached. route:cache exports it.
func (a *Application) FreshRouter() *routing.Router {
	r := routing.New(routing.WithContainer(a.Container))
	for _, define := range a.routeDefinitions() {
		define(r)
	}
	return r
}

// Schedule adds scheduled events. They are applied when the schedule is
// first resolved.
//
//	app.Schedule(func(s *schedule.Schedule) error {
//	    _, err := s.Command("0 3 * * *", "cache:clear")
//	    return err
//	})
func (a *Application) Schedule(fn func(*schedule.Schedule) error) *Application {
	a.state.Lock()
	defer a.state.Unlock()
	a.schedules = append(a.schedules, fn)
	return a
}

func (a *Application) scheduleDefinitions() []func(*schedule.Schedule) error {
	a.state.Lock()
	defer a.state.Unlock()
	return append([]func(*schedule.Schedule) error(nil), a.schedules...)
}

// RegisterSeeders binds seeders as "seeder.<Name>" and tags them for db:seed.
func (a *Application) RegisterSeeders(seeders ...database.Seeder) *Application {
	names := make([]string, 0, len(seeders))
	for _, s := range seeders {
		abstract := "seeder." + database.SeederName(s)
		a.Instance(abstract, s)
		names = append(names, abstract)
	}
	a.Tag(names, database.SeederTag)
	return a
}

// Seeders returns the registered seeders.
func (a *Application) Seeders() ([]database.Seeder, error) {
	tagged, err := a.Tagged(database.SeederTag)
	if err != nil {
		return nil, err
	}
	out := make([]database.Seeder, 0, len(tagged))
	for _, v := range tagged {
		s, ok := v.(database.Seeder)
		if !ok {
			return nil, fmt.Errorf("app: %T tagged %q is not a seeder", v, database.SeederTag)
		}
		out = append(out, s)
	}
	return out, nil
}

// ── Paths ─────────────────────────────────────────────────────────────────────

func (a *Application) abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.basePath, path)
}

func (a *Application) path(dir string, parts []string) string {
	return filepath.Join(append([]string{a.basePath, dir}, parts...)...)
}

// BasePath returns the project root joined with parts.
func (a *Application) BasePath(parts ...string) string { return a.path("", parts) }

// AppPath is the application code directory, "app".
func (a *Application) AppPath(parts ...string) string { return a.path("app", parts) }

// ConfigPath is "config".
func (a *Application) ConfigPath(parts ...string) string { return a.path("config", parts) }

// StoragePath is "storage".
func (a *Application) StoragePath(parts ...string) string { return a.path("storage", parts) }

// ResourcePath is "resources".
func (a *Application) ResourcePath(parts ...string) string { return a.path("resources", parts) }

// ViewPath is the first configured view directory.
func (a *Application) ViewPath(parts ...string) string {
	if a.config != nil && len(a.config.View.Paths) > 0 {
		return filepath.Join(append([]string{a.config.View.Paths[0]}, parts...)...)
	}
	return a.path(filepath.Join("resources", "views"), parts)
}

// DatabasePath is "database".
func (a *Application) DatabasePath(parts ...string) string { return a.path("database", parts) }

// MigrationPath is "database/migrations".
func (a *Application) MigrationPath() string { return a.DatabasePath("migrations") }

// SeederPath is "database/seeders".
func (a *Application) SeederPath() string { return a.DatabasePath("seeders") }

// BootstrapPath is "bootstrap".
func (a *Application) BootstrapPath(parts ...string) string { return a.path("bootstrap", parts) }

// CachePath is "bootstrap/cache", where the config and route caches live.
func (a *Application) CachePath(parts ...string) string {
	return a.BootstrapPath(append([]string{"cache"}, parts...)...)
}

// CachedConfigPath is the configuration cache file.
func (a *Application) CachedConfigPath() string { return a.CachePath("config.json") }

// CachedRoutesPath is the route cache file.
func (a *Application) CachedRoutesPath() string { return a.CachePath("routes.json") }

// ConfigurationIsCached reports whether the configuration cache exists.
func (a *Application) ConfigurationIsCached() bool { return fileExists(a.CachedConfigPath()) }

// RoutesAreCached reports whether the route cache exists.
func (a *Application) RoutesAreCached() bool { return fileExists(a.CachedRoutesPath()) }

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ── Services ──────────────────────────────────────────────────────────────────

// Config resolves *config.Config from the container.
func (a *Application) Config() *config.Config {
	return container.MustResolve[*config.Config](a.Container, "config")
}

// Log resolves the *zap.Logger.
func (a *Application) Log() *zap.Logger {
	return container.MustResolve[*zap.Logger](a.Container, "log")
}

// Router resolves *routing.Router from the container.
func (a *Application) Router() *routing.Router {
	return container.MustResolve[*routing.Router](a.Container, "router")
}

// Views resolves the template engine.
func (a *Application) Views() *view.Engine {
	return container.MustResolve[*view.Engine](a.Container, "view")
}

// Cache resolves the cache manager.
func (a *Application) Cache() *cache.Manager {
	return container.MustResolve[*cache.Manager](a.Container, "cache")
}

// Scheduler resolves the task schedule.
func (a *Application) Scheduler() (*schedule.Schedule, error) {
	return container.Resolve[*schedule.Schedule](a.Container, "schedule")
}

// Exceptions resolves the exception handler.
func (a *Application) Exceptions() *kernel.ExceptionHandler {
	return container.MustResolve[*kernel.ExceptionHandler](a.Container, "exceptions")
}

// HTTPKernel resolves the HTTP kernel.
func (a *Application) HTTPKernel() *kernel.Kernel {
	return container.MustResolve[*kernel.Kernel](a.Container, "http.kernel")
}

// DB resolves the database connection.
func (a *Application) DB() (*sql.DB, error) {
	return container.Resolve[*sql.DB](a.Container, "db")
}

// Migrator resolves the migrator.
func (a *Application) Migrator() (*database.Migrator, error) {
	return container.Resolve[*database.Migrator](a.Container, "migrator")
}

// ── Environment ───────────────────────────────────────────────────────────────

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.Config().App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.Config().App.Debug }
func (a *Application) Version() string     { return FrameworkVersion }

// ── Serving ───────────────────────────────────────────────────────────────────

// ShutdownTimeout bounds the graceful shutdown in Serve.
var ShutdownTimeout = 10 * time.Second

// Serve bootstraps the application and serves HTTP on addr until ctx is
// done, then shuts down gracefully.
func (a *Application) Serve(ctx context.Context, addr string) error {
	if err := a.Bootstrap(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener is Serve on an open listener.
func (a *Application) ServeListener(ctx context.Context, ln net.Listener) error {
	if err := a.Bootstrap(); err != nil {
		_ = ln.Close()
		return err
	}
	logger := a.Log()
	server := &http.Server{
		Handler:           a.HTTPKernel(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()
	logger.Info("server started",
		zap.String("addr", ln.Addr().String()),
		zap.String("env", a.Environment()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	return nil
}

// Run serves on the configured port until SIGINT or SIGTERM.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Bootstrap(); err != nil {
		return err
	}
	return a.Serve(ctx, ":"+a.Config().App.Port)
}
