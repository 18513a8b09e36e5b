package routing

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/km-arc/go-foundation/framework/pipeline"
)

// MiddlewareFactory builds a middleware from the parameters given after the
// colon in a middleware name ("throttle:60,1" → "60", "1").
type MiddlewareFactory func(params ...string) (func(http.Handler) http.Handler, error)

// AliasMiddleware registers named route middleware. mw is either a plain
// middleware or a MiddlewareFactory.
//
//	r.AliasMiddleware("auth", Authenticate)
//	r.AliasMiddleware("throttle", middleware.NewThrottle().Factory())
func (r *Router) AliasMiddleware(name string, mw any) {
	var f MiddlewareFactory
	switch m := mw.(type) {
	case MiddlewareFactory:
		f = m
	case func(params ...string) (func(http.Handler) http.Handler, error):
		f = m
	case func(http.Handler) http.Handler:
		f = func(...string) (func(http.Handler) http.Handler, error) { return m, nil }
	case pipeline.Middleware:
		f = func(...string) (func(http.Handler) http.Handler, error) { return m, nil }
	default:
		panic(fmt.Sprintf("routing: middleware %q: unsupported type %T", name, mw))
	}
	r.mu.Lock()
	r.aliases[name] = f
	r.mu.Unlock()
}

// MiddlewareGroup registers a name that expands to several middleware names.
//
//	r.MiddlewareGroup("api", "throttle:60,1", "auth")
func (r *Router) MiddlewareGroup(name string, names ...string) {
	r.mu.Lock()
	r.groups[name] = append([]string(nil), names...)
	r.mu.Unlock()
}

// MiddlewareAliases returns the registered alias names.
func (r *Router) MiddlewareAliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		out = append(out, name)
	}
	return out
}

// resolveMiddleware expands groups and builds each named middleware. Names
// that are neither aliases nor groups are looked up in the container.
func (r *Router) resolveMiddleware(names []string) ([]pipeline.Middleware, error) {
	var out []pipeline.Middleware
	if err := r.expand(names, &out, map[string]bool{}); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Router) expand(names []string, out *[]pipeline.Middleware, seen map[string]bool) error {
	for _, full := range names {
		name, rawParams, _ := strings.Cut(full, ":")

		r.mu.RLock()
		group, isGroup := r.groups[name]
		factory, isAlias := r.aliases[name]
		c := r.container
		r.mu.RUnlock()

		switch {
		case isGroup:
			if seen[name] {
				return fmt.Errorf("routing: middleware group [%s] includes itself", name)
			}
			seen[name] = true
			if err := r.expand(group, out, seen); err != nil {
				return err
			}
			delete(seen, name)
		case isAlias:
			var params []string
			if rawParams != "" {
				params = strings.Split(rawParams, ",")
			}
			mw, err := factory(params...)
			if err != nil {
				return fmt.Errorf("routing: middleware [%s]: %w", full, err)
			}
			*out = append(*out, mw)
		case c != nil && c.Bound(name):
			v, err := c.Get(name)
			if err != nil {
				return fmt.Errorf("routing: middleware [%s]: %w", full, err)
			}
			switch m := v.(type) {
			case func(http.Handler) http.Handler:
				*out = append(*out, m)
			case pipeline.Middleware:
				*out = append(*out, m)
			default:
				return fmt.Errorf("routing: middleware [%s] resolved to %T", full, v)
			}
		default:
			return fmt.Errorf("routing: middleware [%s] is not defined", name)
		}
	}
	return nil
}
