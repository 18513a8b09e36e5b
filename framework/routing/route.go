package routing

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Route is the registry entry for a registered route. It is also the shape
// written to the route cache.
type Route struct {
	Method     string   `json:"method"`
	URI        string   `json:"uri"`
	Name       string   `json:"name,omitempty"`
	Middleware []string `json:"middleware,omitempty"`
	Action     string   `json:"action"`

	// uncacheable names what keeps the route out of the cache: a closure or
	// handler action, or middleware added with Router.Middleware.
	uncacheable string
}

// Cacheable reports whether the route can be rebuilt from the cache.
func (r Route) Cacheable() bool { return r.uncacheable == "" }

// RouteEntry is returned by the verb helpers so a route can be named and
// given middleware after registration.
//
//	r.Get("/users/{id}", "UserController@Show").Name("users.show").Middleware("auth")
type RouteEntry struct {
	router *Router
	route  *Route
}

// Name sets the route name, prefixed by the enclosing group's name prefix.
func (e *RouteEntry) Name(name string) *RouteEntry {
	e.router.reg.setName(e.route, e.router.namePrefix+name)
	return e
}

// Middleware appends named route middleware.
func (e *RouteEntry) Middleware(names ...string) *RouteEntry {
	e.router.reg.mu.Lock()
	e.route.Middleware = append(e.route.Middleware, names...)
	e.router.reg.mu.Unlock()
	return e
}

// Route returns a copy of the registry entry.
func (e *RouteEntry) Route() Route {
	e.router.reg.mu.RLock()
	defer e.router.reg.mu.RUnlock()
	return e.route.clone()
}

func (r *Route) clone() Route {
	out := *r
	out.Middleware = append([]string(nil), r.Middleware...)
	return out
}

// ── registry ─────────────────────────────────────────────────────────────────

type registry struct {
	mu     sync.RWMutex
	routes []*Route
	named  map[string]*Route
}

func newRegistry() *registry {
	return &registry{named: make(map[string]*Route)}
}

func (g *registry) add(rt *Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, rt)
	if rt.Name != "" {
		g.named[rt.Name] = rt
	}
}

func (g *registry) setName(rt *Route, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rt.Name != "" && g.named[rt.Name] == rt {
		delete(g.named, rt.Name)
	}
	rt.Name = name
	g.named[name] = rt
}

func (g *registry) all() []Route {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Route, len(g.routes))
	for i, rt := range g.routes {
		out[i] = rt.clone()
	}
	return out
}

func (g *registry) byName(name string) (Route, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rt, ok := g.named[name]
	if !ok {
		return Route{}, false
	}
	return rt.clone(), true
}

// ── URL generation ───────────────────────────────────────────────────────────

var placeholder = regexp.MustCompile(`\{([^}:]+)(?::[^}]*)?\}`)

// URL builds the path of a named route. Parameters that do not appear in the
// URI are appended as a query string.
//
//	r.URL("users.show", map[string]string{"id": "42"}) // "/users/42"
func (r *Router) URL(name string, params map[string]string) (string, error) {
	rt, ok := r.reg.byName(name)
	if !ok {
		return "", fmt.Errorf("routing: route [%s] not defined", name)
	}

	used := make(map[string]bool)
	var missing []string
	path := placeholder.ReplaceAllStringFunc(rt.URI, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := params[key]
		if !ok || v == "" {
			missing = append(missing, key)
			return m
		}
		used[key] = true
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("routing: missing parameters [%s] for route [%s]", strings.Join(missing, ", "), name)
	}
	path = strings.TrimSuffix(path, "/*")

	q := url.Values{}
	for k, v := range params {
		if !used[k] {
			q.Set(k, v)
		}
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path, nil
}

// Has reports whether a route with the given name exists.
func (r *Router) Has(name string) bool {
	_, ok := r.reg.byName(name)
	return ok
}
