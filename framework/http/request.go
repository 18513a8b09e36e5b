package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/km-arc/go-foundation/framework/http/validation"
)

const maxMemory = 32 << 20 // 32 MB

// Request wraps *http.Request with input, header and upload helpers.
type Request struct {
	raw *http.Request

	body     []byte
	bodyRead bool
	json     map[string]any
}

// NewRequest wraps a standard *http.Request.
func NewRequest(r *http.Request) *Request {
	return &Request{raw: r}
}

// Raw returns the underlying *http.Request.
func (req *Request) Raw() *http.Request { return req.raw }

// readBody reads the body once and restores it so later readers still see it.
func (req *Request) readBody() ([]byte, error) {
	if req.bodyRead {
		return req.body, nil
	}
	req.bodyRead = true
	if req.raw.Body == nil {
		return nil, nil
	}
	defer req.raw.Body.Close()
	body, err := io.ReadAll(req.raw.Body)
	if err != nil {
		return nil, err
	}
	req.body = body
	req.raw.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// ── Binding ──────────────────────────────────────────────────────────────────

// Bind decodes the request body into v.
// Supports JSON and application/x-www-form-urlencoded / multipart.
// JSON fields map via `json:"name"`; form fields use the same tags.
func (req *Request) Bind(v any) error {
	ct := req.ContentType()

	switch {
	case strings.Contains(ct, "application/json"):
		return req.bindJSON(v)
	case strings.Contains(ct, "multipart/form-data"):
		if err := req.raw.ParseMultipartForm(maxMemory); err != nil {
			return err
		}
		return bindForm(req.raw.MultipartForm.Value, v)
	default:
		if err := req.raw.ParseForm(); err != nil {
			return err
		}
		return bindForm(map[string][]string(req.raw.PostForm), v)
	}
}

func (req *Request) bindJSON(v any) error {
	body, err := req.readBody()
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty request body")
	}
	return json.Unmarshal(body, v)
}

// bindForm maps form values onto a struct through a JSON round-trip so the
// struct's json tags apply to form input too.
func bindForm(values map[string][]string, v any) error {
	m := make(map[string]any, len(values))
	for k, vals := range values {
		if len(vals) == 1 {
			m[k] = vals[0]
		} else {
			m[k] = vals
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// JSON returns the decoded JSON body as a map. Non-JSON requests and bodies
// that are not objects yield an empty map.
func (req *Request) JSON() map[string]any {
	if req.json != nil {
		return req.json
	}
	req.json = map[string]any{}
	if !strings.Contains(req.ContentType(), "application/json") {
		return req.json
	}
	body, err := req.readBody()
	if err != nil || len(body) == 0 {
		return req.json
	}
	_ = json.Unmarshal(body, &req.json)
	return req.json
}

// ── Input helpers ────────────────────────────────────────────────────────────

// Input returns a single input value from the JSON body, the post body or
// the query string, in that order.
func (req *Request) Input(key string, fallback ...string) string {
	if v, ok := req.JSON()[key]; ok && v != nil {
		return stringify(v)
	}
	_ = req.raw.ParseForm()
	v := req.raw.FormValue(key)
	if v == "" && len(fallback) > 0 {
		return fallback[0]
	}
	return v
}

// Query returns a query-string value.
func (req *Request) Query(key string, fallback ...string) string {
	v := req.raw.URL.Query().Get(key)
	if v == "" && len(fallback) > 0 {
		return fallback[0]
	}
	return v
}

// All returns all input as a flat map (query + post + JSON top-level keys).
func (req *Request) All() map[string]string {
	_ = req.raw.ParseForm()
	out := make(map[string]string)
	for k, v := range req.raw.Form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	for k, v := range req.JSON() {
		if v != nil {
			out[k] = stringify(v)
		}
	}
	return out
}

// Only returns the listed keys from All.
func (req *Request) Only(keys ...string) map[string]string {
	all := req.All()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Has returns true if the key is present and non-empty.
func (req *Request) Has(key string) bool {
	return req.Input(key) != ""
}

// Validate checks All() against rules and returns the validated fields, or
// a *validation.Errors.
//
//	data, err := req.Validate(validation.Rules{"email": "required|email"})
func (req *Request) Validate(rules validation.Rules) (map[string]string, error) {
	return validation.Make(req.All(), rules).Validate()
}

// RouteParam returns a URL route parameter (chi).
func (req *Request) RouteParam(key string) string {
	return chi.URLParam(req.raw, key)
}

// Header returns a request header value.
func (req *Request) Header(key string) string {
	return req.raw.Header.Get(key)
}

// Cookie returns a cookie value, or fallback when the cookie is missing.
func (req *Request) Cookie(name string, fallback ...string) string {
	c, err := req.raw.Cookie(name)
	if err != nil {
		if len(fallback) > 0 {
			return fallback[0]
		}
		return ""
	}
	return c.Value
}

// BearerToken extracts the token from Authorization: Bearer <token>.
func (req *Request) BearerToken() string {
	auth := req.raw.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// IP returns the client address without its port. Behind chi's RealIP
// middleware this is the forwarded address.
func (req *Request) IP() string {
	host, _, err := net.SplitHostPort(req.raw.RemoteAddr)
	if err != nil {
		return req.raw.RemoteAddr
	}
	return host
}

// Method returns the HTTP method.
func (req *Request) Method() string { return req.raw.Method }

// Path returns the URL path.
func (req *Request) Path() string { return req.raw.URL.Path }

// ContentType returns the Content-Type header value.
func (req *Request) ContentType() string {
	return req.raw.Header.Get("Content-Type")
}

// IsJSON returns true when the request carries or accepts JSON.
func (req *Request) IsJSON() bool {
	return req.WantsJSON() || strings.Contains(req.ContentType(), "application/json")
}

// WantsJSON reports whether the client asked for a JSON response.
func (req *Request) WantsJSON() bool {
	accept := req.raw.Header.Get("Accept")
	return strings.Contains(accept, "/json") || strings.Contains(accept, "+json")
}

// Ajax reports whether the request was sent with X-Requested-With.
func (req *Request) Ajax() bool {
	return req.raw.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// ── File uploads ─────────────────────────────────────────────────────────────

// File returns an uploaded file by field name.
func (req *Request) File(key string) (*multipart.FileHeader, error) {
	if err := req.raw.ParseMultipartForm(maxMemory); err != nil {
		return nil, err
	}
	_, fh, err := req.raw.FormFile(key)
	return fh, err
}

// Files returns all uploaded files for a field.
func (req *Request) Files(key string) ([]*multipart.FileHeader, error) {
	if err := req.raw.ParseMultipartForm(maxMemory); err != nil {
		return nil, err
	}
	if req.raw.MultipartForm == nil {
		return nil, errors.New("no multipart form")
	}
	return req.raw.MultipartForm.File[key], nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	}
	b, _ := json.Marshal(v)
	return string(b)
}
