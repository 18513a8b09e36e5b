// Package kernel is the HTTP entry point: it bootstraps the application,
// sends every request through the global middleware and the router, and
// hands every error or panic to the ExceptionHandler.
package kernel

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/pipeline"
	"github.com/km-arc/go-foundation/framework/routing"
)

// Bootstrapper prepares the application. Bootstrap must be idempotent.
type Bootstrapper interface {
	Bootstrap() error
}

// Kernel handles HTTP requests.
type Kernel struct {
	app        Bootstrapper
	router     *routing.Router
	exceptions *ExceptionHandler

	mu           sync.Mutex
	middleware   []pipeline.Middleware
	views        Views
	viewPrefix   string
	handler      http.Handler
	bootstrapped bool
}

// New creates a Kernel. app may be nil when there is nothing to bootstrap.
func New(app Bootstrapper, router *routing.Router, exceptions *ExceptionHandler) *Kernel {
	if exceptions == nil {
		exceptions = NewExceptionHandler(nil, false, nil)
	}
	return &Kernel{app: app, router: router, exceptions: exceptions}
}

// Router returns the router.
func (k *Kernel) Router() *routing.Router { return k.router }

// Exceptions returns the exception handler.
func (k *Kernel) Exceptions() *ExceptionHandler { return k.exceptions }

// PushMiddleware appends global middleware. The first pushed runs first.
func (k *Kernel) PushMiddleware(mw ...pipeline.Middleware) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.middleware = append(k.middleware, mw...)
	k.handler = nil
	return k
}

// PrependMiddleware puts global middleware in front of the existing ones.
func (k *Kernel) PrependMiddleware(mw ...pipeline.Middleware) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.middleware = append(append([]pipeline.Middleware(nil), mw...), k.middleware...)
	k.handler = nil
	return k
}

// FallbackToViews serves GET requests that match no route with the view
// named after the path below prefix: "/docs/install" renders
// "<prefix>.docs.install" and "/" renders "<prefix>.index".
func (k *Kernel) FallbackToViews(views Views, prefix string) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.views = views
	k.viewPrefix = strings.Trim(prefix, ".")
	k.handler = nil
	return k
}

// Handle handles one request.
func (k *Kernel) Handle(w http.ResponseWriter, r *http.Request) {
	if err := k.bootstrap(); err != nil {
		k.exceptions.Handle(w, r, err)
		return
	}
	k.resolve().ServeHTTP(w, r)
}

// ServeHTTP implements http.Handler.
func (k *Kernel) ServeHTTP(w http.ResponseWriter, r *http.Request) { k.Handle(w, r) }

func (k *Kernel) bootstrap() error {
	if k.app == nil {
		return nil
	}
	k.mu.Lock()
	done := k.bootstrapped
	k.mu.Unlock()
	if done {
		return nil
	}
	if err := k.app.Bootstrap(); err != nil {
		return fmt.Errorf("kernel: bootstrap: %w", err)
	}
	k.mu.Lock()
	k.bootstrapped = true
	k.mu.Unlock()
	return nil
}

// resolve builds the handler chain on first use, after providers had their
// chance to push middleware.
func (k *Kernel) resolve() http.Handler {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.handler != nil {
		return k.handler
	}
	k.router.OnError(k.exceptions.Handle)
	k.router.NotFound(k.notFound)
	k.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		k.exceptions.Handle(w, r, gohttp.NewError(http.StatusMethodNotAllowed))
	})
	// The outer recoverer covers global middleware; the inner one hands route
	// panics over with the request as the middleware left it.
	k.handler = pipeline.New(k.recoverer).
		Through(k.middleware...).
		Through(k.recoverer).
		Then(k.router)
	return k.handler
}

// recoverer turns panics into PanicErrors for the exception handler.
func (k *Kernel) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				k.exceptions.Handle(w, r, &PanicError{Value: v, Stack: debug.Stack()})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (k *Kernel) notFound(w http.ResponseWriter, r *http.Request) {
	k.mu.Lock()
	views, prefix := k.views, k.viewPrefix
	k.mu.Unlock()

	if views != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		if name, ok := fallbackView(prefix, r.URL.Path); ok && views.Exists(name) {
			if err := gohttp.NewResponse(w).View(views, http.StatusOK, name, nil); err != nil {
				k.exceptions.Handle(w, r, err)
			}
			return
		}
	}
	k.exceptions.Handle(w, r, gohttp.NewError(http.StatusNotFound))
}

// fallbackView maps a path to a view name. Paths with dots never map, so
// "/errors.500" cannot reach an error page.
func fallbackView(prefix, path string) (string, bool) {
	path = strings.Trim(path, "/")
	if strings.Contains(path, ".") {
		return "", false
	}
	if path == "" {
		path = "index"
	}
	name := strings.ReplaceAll(path, "/", ".")
	if prefix != "" {
		name = prefix + "." + name
	}
	return name, true
}
