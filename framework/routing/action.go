package routing

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/km-arc/go-foundation/framework/container"
	gohttp "github.com/km-arc/go-foundation/framework/http"
)

const closureAction = "Closure"

// handlerFor turns a route action into a handler. desc is the action as
// shown by route:list; cacheable reports whether desc alone can rebuild it.
func (r *Router) handlerFor(action any) (h http.Handler, desc string, cacheable bool, err error) {
	switch a := action.(type) {
	case nil:
		return nil, "", false, errors.New("nil action")
	case http.HandlerFunc:
		return a, closureAction, false, nil
	case func(http.ResponseWriter, *http.Request):
		return http.HandlerFunc(a), closureAction, false, nil
	case func(http.ResponseWriter, *http.Request) error:
		return r.errorAction(a), closureAction, false, nil
	case string:
		if a == "" {
			return nil, "", false, errors.New("empty action")
		}
		return r.containerAction(a), a, true, nil
	case container.Method:
		if target, ok := a.Target.(string); ok {
			return r.containerAction(a), target + "@" + a.Name, true, nil
		}
		return r.containerAction(a), fmt.Sprintf("%s@%s", reflect.TypeOf(a.Target), a.Name), false, nil
	case http.Handler:
		return a, fmt.Sprintf("%T", a), false, nil
	}
	return nil, "", false, fmt.Errorf("unsupported action type %T", action)
}

func (r *Router) errorAction(fn func(http.ResponseWriter, *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := fn(w, req); err != nil {
			r.fail(w, req, err)
		}
	})
}

// containerAction calls callable through the container. The handler's
// arguments are resolved by type: http.ResponseWriter, *http.Request,
// *gohttp.Request, *gohttp.Response and context.Context are supplied from
// the current request, everything else is resolved from the container.
//
// When the action writes nothing, its first result becomes the response: a
// string is sent as HTML, []byte as is, anything else as JSON.
func (r *Router) containerAction(callable any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		c := r.container
		r.mu.RUnlock()
		if c == nil {
			r.fail(w, req, fmt.Errorf("routing: no container to resolve action %v", callable))
			return
		}

		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		out, err := c.Call(callable, container.Params{Typed: []any{
			ww, req, gohttp.NewRequest(req), gohttp.NewResponse(ww), req.Context(),
		}})
		if err != nil {
			r.fail(ww, req, err)
			return
		}
		if ww.Status() != 0 || len(out) == 0 || out[0] == nil {
			return
		}
		writeResult(ww, out[0])
	})
}

func writeResult(w http.ResponseWriter, v any) {
	res := gohttp.NewResponse(w)
	switch t := v.(type) {
	case string:
		res.HTML(http.StatusOK, t)
	case []byte:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(t)
	default:
		res.JSON(http.StatusOK, t)
	}
}
