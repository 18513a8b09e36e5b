package routing

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/km-arc/go-foundation/framework/container"
	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/pipeline"
)

// ErrorHandler renders an error returned (or raised) by a route action.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Router wraps chi.Router with Laravel-style helpers: named routes, named
// route middleware, container-resolved controller actions and a route cache.
type Router struct {
	mux chi.Router
	*core

	prefix     string
	namePrefix string
	middleware []string

	// funcMiddleware is set once Middleware has run on this router or a
	// parent. Those handlers live only in chi, so the routes below cannot be
	// cached.
	funcMiddleware bool
}

// core is shared by a router and every group created from it.
type core struct {
	reg *registry

	mu        sync.RWMutex
	container *container.Container
	aliases   map[string]MiddlewareFactory
	groups    map[string][]string
	onError   ErrorHandler
}

// Option configures a Router.
type Option func(*Router)

// WithContainer resolves "Controller@Method" and container.Method actions
// through c.
func WithContainer(c *container.Container) Option {
	return func(r *Router) { r.container = c }
}

// WithErrorHandler sets the handler for action errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(r *Router) { r.onError = h }
}

// New creates a Router. Logging, recovery and request ids are the HTTP
// kernel's job, so only RealIP is installed here.
func New(opts ...Option) *Router {
	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	r := &Router{
		mux: mux,
		core: &core{
			reg:     newRegistry(),
			aliases: make(map[string]MiddlewareFactory),
			groups:  make(map[string][]string),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetContainer sets the container used for controller actions.
func (r *Router) SetContainer(c *container.Container) {
	r.mu.Lock()
	r.container = c
	r.mu.Unlock()
}

// OnError sets the handler for action errors.
func (r *Router) OnError(h ErrorHandler) {
	r.mu.Lock()
	r.onError = h
	r.mu.Unlock()
}

func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	r.mu.RLock()
	h := r.onError
	r.mu.RUnlock()
	if h != nil {
		h(w, req, err)
		return
	}
	status := gohttp.StatusOf(err)
	http.Error(w, gohttp.StatusText(status), status)
}

// ── HTTP verbs ───────────────────────────────────────────────────────────────

// An action is one of:
//   - http.HandlerFunc or func(http.ResponseWriter, *http.Request)
//   - func(http.ResponseWriter, *http.Request) error
//   - http.Handler
//   - "Controller@Method" or an invokable abstract, resolved through the container
//   - container.Method{Target, Name}

func (r *Router) Get(pattern string, action any) *RouteEntry {
	return r.add(http.MethodGet, pattern, action)
}

func (r *Router) Post(pattern string, action any) *RouteEntry {
	return r.add(http.MethodPost, pattern, action)
}

func (r *Router) Put(pattern string, action any) *RouteEntry {
	return r.add(http.MethodPut, pattern, action)
}

func (r *Router) Patch(pattern string, action any) *RouteEntry {
	return r.add(http.MethodPatch, pattern, action)
}

func (r *Router) Delete(pattern string, action any) *RouteEntry {
	return r.add(http.MethodDelete, pattern, action)
}

func (r *Router) Options(pattern string, action any) *RouteEntry {
	return r.add(http.MethodOptions, pattern, action)
}

var anyMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}

// Any registers a handler for all common HTTP methods.
func (r *Router) Any(pattern string, action any) {
	r.Match(anyMethods, pattern, action)
}

// Match registers a handler for the given methods.
//
//	r.Match([]string{"GET", "POST"}, "/search", search)
func (r *Router) Match(methods []string, pattern string, action any) {
	for _, m := range methods {
		r.add(strings.ToUpper(m), pattern, action)
	}
}

func (r *Router) add(method, pattern string, action any) *RouteEntry {
	h, desc, cacheable, err := r.handlerFor(action)
	if err != nil {
		panic(fmt.Sprintf("routing: %s %s: %v", method, pattern, err))
	}
	rt := &Route{
		Method:      method,
		URI:         joinPath(r.prefix, pattern),
		Middleware:  append([]string(nil), r.middleware...),
		Action:      desc,
		uncacheable: r.uncacheable(desc, cacheable),
	}
	r.reg.add(rt)
	r.mux.Method(method, pattern, r.dispatch(rt, h))
	return &RouteEntry{router: r, route: rt}
}

// dispatch wraps the action in the route's named middleware. The pipeline is
// built on first use so middleware added with RouteEntry.Middleware and
// aliases registered after the route are honoured.
func (r *Router) dispatch(rt *Route, action http.Handler) http.Handler {
	var (
		once  sync.Once
		chain http.Handler
		err   error
	)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		once.Do(func() {
			r.reg.mu.RLock()
			names := append([]string(nil), rt.Middleware...)
			r.reg.mu.RUnlock()

			var mws []pipeline.Middleware
			if mws, err = r.resolveMiddleware(names); err == nil {
				chain = pipeline.New(mws...).Then(action)
			}
		})
		if err != nil {
			r.fail(w, req, err)
			return
		}
		chain.ServeHTTP(w, req)
	})
}

// ── Groups & Prefixes ────────────────────────────────────────────────────────

// Attributes are shared by every route of a group.
type Attributes struct {
	Prefix     string   // URI prefix
	As         string   // route name prefix, e.g. "admin."
	Middleware []string // named route middleware
}

// Group registers routes that share the middleware added inside fn.
func (r *Router) Group(fn func(r *Router)) {
	r.mux.Group(func(mx chi.Router) {
		fn(r.child(mx, "", Attributes{}))
	})
}

// Prefix registers the routes of fn below pattern.
func (r *Router) Prefix(pattern string, fn func(r *Router)) {
	r.mux.Route(pattern, func(mx chi.Router) {
		fn(r.child(mx, pattern, Attributes{}))
	})
}

// GroupWith creates a group with a prefix, a name prefix and named middleware.
//
//	r.GroupWith(routing.Attributes{Prefix: "/admin", As: "admin.", Middleware: []string{"auth"}}, func(r *routing.Router) {
//	    r.Get("/users", "AdminController@Users").Name("users") // admin.users
//	})
func (r *Router) GroupWith(attrs Attributes, fn func(r *Router)) {
	if attrs.Prefix == "" {
		r.mux.Group(func(mx chi.Router) {
			fn(r.child(mx, "", attrs))
		})
		return
	}
	r.mux.Route(attrs.Prefix, func(mx chi.Router) {
		fn(r.child(mx, attrs.Prefix, attrs))
	})
}

func (r *Router) child(mx chi.Router, prefix string, attrs Attributes) *Router {
	mw := append(append([]string(nil), r.middleware...), attrs.Middleware...)
	return &Router{
		mux:            mx,
		core:           r.core,
		prefix:         joinPath(r.prefix, prefix),
		namePrefix:     r.namePrefix + attrs.As,
		middleware:     mw,
		funcMiddleware: r.funcMiddleware,
	}
}

// uncacheable returns why a route with the given action cannot be cached,
// or "" when it can.
func (r *Router) uncacheable(desc string, cacheable bool) string {
	switch {
	case !cacheable:
		return desc
	case r.funcMiddleware:
		return "unnamed middleware"
	}
	return ""
}

// ── Middleware ───────────────────────────────────────────────────────────────

// Middleware adds one or more middleware to the router. Like chi, it must be
// called before routes are registered on this router. Routes registered
// after it cannot be cached; use AliasMiddleware and named middleware for
// cacheable routes.
func (r *Router) Middleware(mw ...func(http.Handler) http.Handler) {
	if len(mw) > 0 {
		r.funcMiddleware = true
	}
	r.mux.Use(mw...)
}

// ── Resource routes ──────────────────────────────────────────────────────────

// ResourceController handles the standard RESTful actions.
//
//	GET    /photos           → c.Index
//	POST   /photos           → c.Store
//	GET    /photos/{id}      → c.Show
//	PUT    /photos/{id}      → c.Update
//	DELETE /photos/{id}      → c.Destroy
type ResourceController interface {
	Index(w http.ResponseWriter, r *http.Request)
	Store(w http.ResponseWriter, r *http.Request)
	Show(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Destroy(w http.ResponseWriter, r *http.Request)
}

// Resource registers the RESTful routes for a controller, named
// "<resource>.index", "<resource>.store" and so on. controller is either a
// ResourceController or the container abstract of one.
func (r *Router) Resource(pattern string, controller any) {
	base := strings.ReplaceAll(strings.Trim(pattern, "/"), "/", ".")
	item := strings.TrimSuffix(pattern, "/") + "/{id}"

	actions := map[string]any{}
	switch c := controller.(type) {
	case string:
		for _, m := range []string{"Index", "Store", "Show", "Update", "Destroy"} {
			actions[m] = c + "@" + m
		}
	case ResourceController:
		actions["Index"] = http.HandlerFunc(c.Index)
		actions["Store"] = http.HandlerFunc(c.Store)
		actions["Show"] = http.HandlerFunc(c.Show)
		actions["Update"] = http.HandlerFunc(c.Update)
		actions["Destroy"] = http.HandlerFunc(c.Destroy)
	default:
		panic(fmt.Sprintf("routing: resource %s: %T is not a ResourceController", pattern, controller))
	}

	r.Get(pattern, actions["Index"]).Name(base + ".index")
	r.Post(pattern, actions["Store"]).Name(base + ".store")
	r.Get(item, actions["Show"]).Name(base + ".show")
	r.Put(item, actions["Update"]).Name(base + ".update")
	r.Patch(item, actions["Update"])
	r.Delete(item, actions["Destroy"]).Name(base + ".destroy")
}

// ── Static files ─────────────────────────────────────────────────────────────

const staticAction = "static:"

// Static serves a filesystem at the given prefix.
// e.g. router.Static("/public", "./public")
func (r *Router) Static(prefix, dir string) {
	prefix = strings.TrimSuffix(prefix, "/")
	rt := &Route{
		Method:      http.MethodGet,
		URI:         joinPath(r.prefix, prefix) + "/*",
		Middleware:  append([]string(nil), r.middleware...),
		Action:      staticAction + dir,
		uncacheable: r.uncacheable(staticAction+dir, true),
	}
	r.reg.add(rt)
	r.mux.Method(http.MethodGet, prefix+"/*", r.dispatch(rt, staticHandler(joinPath(r.prefix, prefix), dir)))
}

func staticHandler(prefix, dir string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
}

// ── Fallbacks ────────────────────────────────────────────────────────────────

// NotFound sets the handler for unmatched paths.
func (r *Router) NotFound(h http.HandlerFunc) { r.mux.NotFound(h) }

// MethodNotAllowed sets the handler for a path matched with the wrong method.
func (r *Router) MethodNotAllowed(h http.HandlerFunc) { r.mux.MethodNotAllowed(h) }

// ── Registry ─────────────────────────────────────────────────────────────────

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []Route { return r.reg.all() }

// ── Params ───────────────────────────────────────────────────────────────────

// Param returns the URL parameter key of r.
func Param(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// ── Serve ────────────────────────────────────────────────────────────────────

// ServeHTTP implements http.Handler so Router can be passed to http.ListenAndServe.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the underlying http.Handler (for testing etc.).
func (r *Router) Handler() http.Handler {
	return r.mux
}

// Mux returns the chi router.
func (r *Router) Mux() chi.Router { return r.mux }

func joinPath(prefix, pattern string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if pattern == "" || pattern == "/" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	return prefix + "/" + strings.TrimPrefix(pattern, "/")
}
