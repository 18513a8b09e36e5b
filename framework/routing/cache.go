package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Export returns the routes for caching. Closures, handler values and
// middleware added with Router.Middleware cannot be rebuilt from a cache file,
// so any route using them is an error.
func (r *Router) Export() ([]Route, error) {
	routes := r.Routes()
	for _, rt := range routes {
		if !rt.Cacheable() {
			return nil, fmt.Errorf("routing: unable to prepare route [%s %s] for serialization: uses %s", rt.Method, rt.URI, rt.uncacheable)
		}
	}
	return routes, nil
}

// Cache writes the exported routes to path as JSON.
func (r *Router) Cache(path string) error {
	routes, err := r.Export()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadCache reads a route cache file.
func ReadCache(path string) ([]Route, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var routes []Route
	if err := json.Unmarshal(b, &routes); err != nil {
		return nil, fmt.Errorf("routing: invalid route cache %s: %w", path, err)
	}
	return routes, nil
}

// LoadCache registers the routes stored in path. Actions are container
// actions or static directories.
func (r *Router) LoadCache(path string) error {
	routes, err := ReadCache(path)
	if err != nil {
		return err
	}
	for _, rt := range routes {
		r.register(rt)
	}
	return nil
}

func (r *Router) register(src Route) {
	rt := src.clone()
	rt.uncacheable = ""

	var h http.Handler
	if dir, ok := strings.CutPrefix(rt.Action, staticAction); ok {
		h = staticHandler(strings.TrimSuffix(rt.URI, "/*"), dir)
	} else {
		h = r.containerAction(rt.Action)
	}
	r.reg.add(&rt)
	r.mux.Method(rt.Method, rt.URI, r.dispatch(&rt, h))
}

// ClearCache removes the route cache file. removed is false when there was
// nothing to remove.
func ClearCache(path string) (removed bool, err error) {
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
