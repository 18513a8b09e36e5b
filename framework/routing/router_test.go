package routing_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-foundation/framework/container"
	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/routing"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func do(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// tagMiddleware adds its parameters to the X-Tag response header.
func tagMiddleware(params ...string) (func(http.Handler) http.Handler, error) {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Tag", strings.Join(params, ","))
			next.ServeHTTP(w, r)
		})
	}, nil
}

type userController struct{}

func (u *userController) Show(req *gohttp.Request) map[string]string {
	return map[string]string{"id": req.RouteParam("id")}
}

func (u *userController) Store(res *gohttp.Response) {
	res.Created(map[string]string{"ok": "yes"})
}

func (u *userController) Forbidden() error {
	return gohttp.NewError(http.StatusForbidden)
}

func (u *userController) Hello(w http.ResponseWriter, r *http.Request) string {
	return "<p>hi " + r.URL.Query().Get("name") + "</p>"
}

func newContainer() *container.Container {
	c := container.New()
	c.Instance("users", &userController{})
	return c
}

// ── HTTP verbs ────────────────────────────────────────────────────────────────

func TestRouter_Verbs(t *testing.T) {
	r := routing.New()
	r.Get("/hello", okHandler)
	r.Post("/users", okHandler)
	r.Put("/users/{id}", okHandler)
	r.Patch("/users/{id}", okHandler)
	r.Delete("/users/{id}", okHandler)
	r.Options("/users", okHandler)

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/hello"},
		{http.MethodPost, "/users"},
		{http.MethodPut, "/users/1"},
		{http.MethodPatch, "/users/1"},
		{http.MethodDelete, "/users/1"},
		{http.MethodOptions, "/users"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, do(t, r, tt.method, tt.path).Code)
		})
	}
}

func TestRouter_Any(t *testing.T) {
	r := routing.New()
	r.Any("/ping", okHandler)

	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		assert.Equal(t, http.StatusOK, do(t, r, method, "/ping").Code, method)
	}
	assert.Len(t, r.Routes(), 7)
}

func TestRouter_Match(t *testing.T) {
	r := routing.New()
	r.Match([]string{"get", "post"}, "/search", okHandler)

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/search").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, r, http.MethodDelete, "/search").Code)
}

func TestRouter_ErrorReturningAction(t *testing.T) {
	r := routing.New()
	r.Get("/boom", func(w http.ResponseWriter, req *http.Request) error {
		return gohttp.NewError(http.StatusTeapot)
	})
	assert.Equal(t, http.StatusTeapot, do(t, r, http.MethodGet, "/boom").Code)

	var got error
	r.OnError(func(w http.ResponseWriter, req *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusBadGateway)
	})
	assert.Equal(t, http.StatusBadGateway, do(t, r, http.MethodGet, "/boom").Code)
	assert.Equal(t, http.StatusTeapot, gohttp.StatusOf(got))
}

func TestRouter_UnsupportedActionPanics(t *testing.T) {
	r := routing.New()
	assert.Panics(t, func() { r.Get("/x", 42) })
}

// ── 404 for unregistered routes ──────────────────────────────────────────────

func TestRouter_NotFound(t *testing.T) {
	r := routing.New()
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/not-registered").Code)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	assert.Equal(t, http.StatusGone, do(t, r, http.MethodGet, "/not-registered").Code)
}

// ── Route params ─────────────────────────────────────────────────────────────

func TestRouter_Param(t *testing.T) {
	r := routing.New()
	r.Get("/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(routing.Param(req, "id")))
	})

	rr := do(t, r, http.MethodGet, "/users/42")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "42", rr.Body.String())
}

// ── Prefix / Group ───────────────────────────────────────────────────────────

func TestRouter_Prefix(t *testing.T) {
	r := routing.New()
	r.Prefix("/api/v1", func(api *routing.Router) {
		api.Get("/users", okHandler)
	})

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/users").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/users").Code)
	assert.Equal(t, "/api/v1/users", r.Routes()[0].URI)
}

func TestRouter_Group_Middleware(t *testing.T) {
	called := false
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			next.ServeHTTP(w, r)
		})
	}

	r := routing.New()
	r.Group(func(g *routing.Router) {
		g.Middleware(mw)
		g.Get("/protected", okHandler)
	})
	r.Get("/open", okHandler)

	do(t, r, http.MethodGet, "/open")
	assert.False(t, called, "group middleware leaked to sibling routes")

	do(t, r, http.MethodGet, "/protected")
	assert.True(t, called)
}

func TestRouter_GroupWith(t *testing.T) {
	r := routing.New()
	r.AliasMiddleware("tag", routing.MiddlewareFactory(tagMiddleware))
	r.GroupWith(routing.Attributes{Prefix: "/admin", As: "admin.", Middleware: []string{"tag:admin"}}, func(g *routing.Router) {
		g.Get("/users/{id}", okHandler).Name("users.show").Middleware("tag:x,y")
	})

	rr := do(t, r, http.MethodGet, "/admin/users/3")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"admin", "x,y"}, rr.Header().Values("X-Tag"))

	routes := r.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, routing.Route{
		Method:     http.MethodGet,
		URI:        "/admin/users/{id}",
		Name:       "admin.users.show",
		Middleware: []string{"tag:admin", "tag:x,y"},
		Action:     "Closure",
	}, withoutCacheFlag(routes[0]))
}

func withoutCacheFlag(rt routing.Route) routing.Route {
	return routing.Route{Method: rt.Method, URI: rt.URI, Name: rt.Name, Middleware: rt.Middleware, Action: rt.Action}
}

// ── Named middleware ─────────────────────────────────────────────────────────

func TestRouter_MiddlewareGroups(t *testing.T) {
	r := routing.New()
	r.AliasMiddleware("tag", routing.MiddlewareFactory(tagMiddleware))
	r.MiddlewareGroup("web", "tag:one", "tag:two")
	r.Get("/", okHandler).Middleware("web")

	assert.Equal(t, []string{"one", "two"}, do(t, r, http.MethodGet, "/").Header().Values("X-Tag"))
}

func TestRouter_UndefinedMiddleware(t *testing.T) {
	r := routing.New()
	r.Get("/", okHandler).Middleware("missing")
	assert.Equal(t, http.StatusInternalServerError, do(t, r, http.MethodGet, "/").Code)
}

func TestRouter_SelfReferencingMiddlewareGroup(t *testing.T) {
	r := routing.New()
	r.MiddlewareGroup("loop", "loop")
	r.Get("/", okHandler).Middleware("loop")
	assert.Equal(t, http.StatusInternalServerError, do(t, r, http.MethodGet, "/").Code)
}

func TestRouter_MiddlewareFromContainer(t *testing.T) {
	c := container.New()
	_ = c.Singleton("auth", func(*container.Container) any {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			})
		}
	})
	r := routing.New(routing.WithContainer(c))
	r.Get("/me", okHandler).Middleware("auth")

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/me").Code)
}

// ── Container actions ────────────────────────────────────────────────────────

func TestRouter_ContainerActions(t *testing.T) {
	r := routing.New(routing.WithContainer(newContainer()))
	r.Get("/users/{id}", "users@Show")
	r.Post("/users", container.Method{Target: "users", Name: "Store"})
	r.Get("/forbidden", "users@Forbidden")
	r.Get("/hello", "users@Hello")

	rr := do(t, r, http.MethodGet, "/users/9")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"9"}`, rr.Body.String())

	rr = do(t, r, http.MethodPost, "/users")
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"data":{"ok":"yes"}}`, rr.Body.String())

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodGet, "/forbidden").Code)

	rr = do(t, r, http.MethodGet, "/hello?name=ada")
	assert.Equal(t, "<p>hi ada</p>", rr.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestRouter_ContainerActionWithoutContainer(t *testing.T) {
	r := routing.New()
	r.Get("/users/{id}", "users@Show")
	assert.Equal(t, http.StatusInternalServerError, do(t, r, http.MethodGet, "/users/1").Code)
}

func TestRouter_ActionDescriptions(t *testing.T) {
	r := routing.New(routing.WithContainer(newContainer()))
	r.Get("/a", "users@Show")
	r.Get("/b", container.Method{Target: &userController{}, Name: "Show"})
	r.Get("/c", okHandler)

	routes := r.Routes()
	assert.Equal(t, "users@Show", routes[0].Action)
	assert.True(t, routes[0].Cacheable())
	assert.Equal(t, "*routing_test.userController@Show", routes[1].Action)
	assert.False(t, routes[1].Cacheable())
	assert.Equal(t, "Closure", routes[2].Action)
}

// ── Resource routes ───────────────────────────────────────────────────────────

type stubController struct{}

func (s *stubController) Index(w http.ResponseWriter, r *http.Request)   { w.WriteHeader(200) }
func (s *stubController) Store(w http.ResponseWriter, r *http.Request)   { w.WriteHeader(201) }
func (s *stubController) Show(w http.ResponseWriter, r *http.Request)    { w.WriteHeader(200) }
func (s *stubController) Update(w http.ResponseWriter, r *http.Request)  { w.WriteHeader(200) }
func (s *stubController) Destroy(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }

func TestRouter_Resource(t *testing.T) {
	r := routing.New()
	r.Resource("/photos", &stubController{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/photos", 200},
		{"POST", "/photos", 201},
		{"GET", "/photos/1", 200},
		{"PUT", "/photos/1", 200},
		{"PATCH", "/photos/1", 200},
		{"DELETE", "/photos/1", 204},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, r, tt.method, tt.path).Code)
		})
	}

	for _, name := range []string{"photos.index", "photos.store", "photos.show", "photos.update", "photos.destroy"} {
		assert.True(t, r.Has(name), name)
	}
}

func TestRouter_ResourceFromContainer(t *testing.T) {
	r := routing.New()
	r.Resource("/admin/users", "users")

	routes := r.Routes()
	require.Len(t, routes, 6)
	assert.Equal(t, "users@Index", routes[0].Action)
	assert.Equal(t, "admin.users.show", routes[2].Name)
}

// ── URL generation ───────────────────────────────────────────────────────────

func TestRouter_URL(t *testing.T) {
	r := routing.New()
	r.Prefix("/blog", func(b *routing.Router) {
		b.Get("/{year:[0-9]+}/{slug}", okHandler).Name("post")
	})

	u, err := r.URL("post", map[string]string{"year": "2024", "slug": "hello world", "ref": "home"})
	require.NoError(t, err)
	assert.Equal(t, "/blog/2024/hello%20world?ref=home", u)

	_, err = r.URL("post", map[string]string{"year": "2024"})
	assert.ErrorContains(t, err, "missing parameters [slug]")

	_, err = r.URL("nope", nil)
	assert.ErrorContains(t, err, "not defined")
}

func TestRouter_RenameRoute(t *testing.T) {
	r := routing.New()
	e := r.Get("/", okHandler).Name("first")
	e.Name("home")

	assert.False(t, r.Has("first"))
	assert.True(t, r.Has("home"))
	assert.Equal(t, "home", e.Route().Name)
}

// ── Handler() returns http.Handler ───────────────────────────────────────────

func TestRouter_HandlerInterface(t *testing.T) {
	r := routing.New()
	r.Get("/ping", okHandler)
	var _ http.Handler = r.Handler()
	assert.NotNil(t, r.Mux())
}
