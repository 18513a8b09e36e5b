package http_test

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/http/validation"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func newJSONRequest(t *testing.T, body string) *gohttp.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return gohttp.NewRequest(req)
}

func newFormRequest(t *testing.T, values url.Values) *gohttp.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return gohttp.NewRequest(req)
}

func newGetRequest(t *testing.T, rawQuery string) *gohttp.Request {
	t.Helper()
	return gohttp.NewRequest(httptest.NewRequest(http.MethodGet, "/?"+rawQuery, nil))
}

// ── Bind ─────────────────────────────────────────────────────────────────────

func TestRequest_BindJSON(t *testing.T) {
	type user struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	req := newJSONRequest(t, `{"name":"Alice","email":"alice@example.com"}`)

	var u user
	require.NoError(t, req.Bind(&u))
	assert.Equal(t, user{Name: "Alice", Email: "alice@example.com"}, u)

	// The body stays readable for later consumers.
	rest, err := io.ReadAll(req.Raw().Body)
	require.NoError(t, err)
	assert.Contains(t, string(rest), "Alice")
}

func TestRequest_BindJSON_Errors(t *testing.T) {
	var v map[string]any
	assert.Error(t, newJSONRequest(t, "").Bind(&v), "empty body")
	assert.Error(t, newJSONRequest(t, `{bad json}`).Bind(&v), "invalid JSON")
}

func TestRequest_BindForm(t *testing.T) {
	var p struct {
		Name string `json:"name"`
	}
	require.NoError(t, newFormRequest(t, url.Values{"name": {"Bob"}}).Bind(&p))
	assert.Equal(t, "Bob", p.Name)
}

// ── JSON input ───────────────────────────────────────────────────────────────

func TestRequest_JSONInput(t *testing.T) {
	req := newJSONRequest(t, `{"name":"Ada","age":36,"admin":true,"tags":["a"]}`)

	assert.Equal(t, "Ada", req.Input("name"))
	assert.Equal(t, "36", req.Input("age"))
	assert.Equal(t, "true", req.Input("admin"))
	assert.Equal(t, `["a"]`, req.Input("tags"))
	assert.Equal(t, "fallback", req.Input("missing", "fallback"))

	all := req.All()
	assert.Equal(t, "Ada", all["name"])
	assert.Equal(t, map[string]string{"name": "Ada"}, req.Only("name", "nope"))
}

func TestRequest_JSONOnNonJSONRequest(t *testing.T) {
	assert.Empty(t, newGetRequest(t, "a=1").JSON())
}

// ── Input / Query ─────────────────────────────────────────────────────────────

func TestRequest_Input(t *testing.T) {
	assert.Equal(t, "charlie", newFormRequest(t, url.Values{"username": {"charlie"}}).Input("username"))
	assert.Equal(t, "default", newGetRequest(t, "").Input("missing", "default"))
}

func TestRequest_Query(t *testing.T) {
	req := newGetRequest(t, "page=2&limit=10")
	assert.Equal(t, "2", req.Query("page"))
	assert.Equal(t, "10", req.Query("limit"))
	assert.Equal(t, "1", req.Query("missing", "1"))
}

func TestRequest_All(t *testing.T) {
	all := newFormRequest(t, url.Values{"a": {"1"}, "b": {"2"}}).All()
	assert.Equal(t, "1", all["a"])
	assert.Equal(t, "2", all["b"])
}

func TestRequest_Has(t *testing.T) {
	req := newFormRequest(t, url.Values{"name": {"Alice"}, "empty": {""}})
	assert.True(t, req.Has("name"))
	assert.False(t, req.Has("empty"))
	assert.False(t, req.Has("missing"))
}

func TestRequest_Validate(t *testing.T) {
	req := newJSONRequest(t, `{"email":"a@b.com","age":"20"}`)
	data, err := req.Validate(validation.Rules{"email": "required|email", "age": "integer|gte:18"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "a@b.com", "age": "20"}, data)

	_, err = newJSONRequest(t, `{"email":"nope"}`).Validate(validation.Rules{"email": "email"})
	var bag *validation.Errors
	require.ErrorAs(t, err, &bag)
	assert.NotEmpty(t, bag.First("email"))
}

// ── Headers / Auth / Cookies ──────────────────────────────────────────────────

func TestRequest_Header(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Custom", "value123")
	assert.Equal(t, "value123", gohttp.NewRequest(r).Header("X-Custom"))
}

func TestRequest_BearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, gohttp.NewRequest(r).BearerToken())

	r.Header.Set("Authorization", "Bearer my-secret-token")
	assert.Equal(t, "my-secret-token", gohttp.NewRequest(r).BearerToken())
}

func TestRequest_IP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", gohttp.NewRequest(r).IP())

	r.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", gohttp.NewRequest(r).IP())
}

func TestRequest_Cookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: "abc"})
	req := gohttp.NewRequest(r)

	assert.Equal(t, "abc", req.Cookie("session"))
	assert.Equal(t, "none", req.Cookie("missing", "none"))
	assert.Empty(t, req.Cookie("missing"))
}

// ── Content negotiation ──────────────────────────────────────────────────────

func TestRequest_IsJSON(t *testing.T) {
	assert.True(t, newJSONRequest(t, `{}`).IsJSON())
	assert.False(t, newJSONRequest(t, `{}`).WantsJSON(), "content type alone does not ask for JSON")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept", "application/vnd.api+json")
	assert.True(t, gohttp.NewRequest(r).WantsJSON())
	assert.True(t, gohttp.NewRequest(r).IsJSON())
}

func TestRequest_Ajax(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	assert.True(t, gohttp.NewRequest(r).Ajax())
}

// ── Method / Path ─────────────────────────────────────────────────────────────

func TestRequest_MethodAndPath(t *testing.T) {
	req := gohttp.NewRequest(httptest.NewRequest(http.MethodDelete, "/api/v1/users", nil))
	assert.Equal(t, http.MethodDelete, req.Method())
	assert.Equal(t, "/api/v1/users", req.Path())
}

// ── Multipart file upload ─────────────────────────────────────────────────────

func TestRequest_File(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("avatar", "avatar.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("fake-image-data"))
	require.NoError(t, w.Close())

	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	req := gohttp.NewRequest(r)

	fh, err := req.File("avatar")
	require.NoError(t, err)
	assert.Equal(t, "avatar.png", fh.Filename)

	files, err := req.Files("avatar")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
