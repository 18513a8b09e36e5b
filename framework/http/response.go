package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/km-arc/go-foundation/framework/http/validation"
)

// Renderer renders a named template. *view.Engine implements it.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// ── Response ─────────────────────────────────────────────────────────────────

// Response wraps http.ResponseWriter with response helpers.
type Response struct {
	w http.ResponseWriter
}

// NewResponse wraps a ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// Raw returns the underlying ResponseWriter.
func (res *Response) Raw() http.ResponseWriter { return res.w }

// Header sets a response header and returns res for chaining.
func (res *Response) Header(key, value string) *Response {
	res.w.Header().Set(key, value)
	return res
}

// Cookie adds a Set-Cookie header.
func (res *Response) Cookie(c *http.Cookie) *Response {
	http.SetCookie(res.w, c)
	return res
}

// ── JSON responses ────────────────────────────────────────────────────────────

// JSON sends a JSON response.
//
//	res.JSON(http.StatusOK, map[string]any{"message": "ok"})
func (res *Response) JSON(status int, data any) {
	res.w.Header().Set("Content-Type", "application/json")
	res.w.WriteHeader(status)
	_ = json.NewEncoder(res.w).Encode(data)
}

// Success sends 200 JSON: {"data": v}
func (res *Response) Success(v any) {
	res.JSON(http.StatusOK, envelope{"data": v})
}

// Created sends 201 JSON: {"data": v}
func (res *Response) Created(v any) {
	res.JSON(http.StatusCreated, envelope{"data": v})
}

// NoContent sends 204 with no body.
func (res *Response) NoContent() {
	res.w.WriteHeader(http.StatusNoContent)
}

// Error sends a JSON error response.
//
//	res.Error(http.StatusNotFound, "Resource not found")
func (res *Response) Error(status int, message string) {
	res.JSON(status, envelope{"message": message})
}

// Unauthorized sends 401.
func (res *Response) Unauthorized(message ...string) {
	res.Error(http.StatusUnauthorized, first(message, "Unauthenticated."))
}

// Forbidden sends 403.
func (res *Response) Forbidden(message ...string) {
	res.Error(http.StatusForbidden, first(message, "This action is unauthorized."))
}

// NotFound sends 404.
func (res *Response) NotFound(message ...string) {
	res.Error(http.StatusNotFound, first(message, "Not found."))
}

// ServerError sends 500.
func (res *Response) ServerError(message ...string) {
	res.Error(http.StatusInternalServerError, first(message, "Server Error."))
}

// ValidationError sends 422 with the error bag.
//
//	res.ValidationError(validator.Errors())
func (res *Response) ValidationError(errors *validation.Errors) {
	res.JSON(http.StatusUnprocessableEntity, errors)
}

// ── Plain responses ──────────────────────────────────────────────────────────

// HTML sends an HTML body.
func (res *Response) HTML(status int, body string) {
	res.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	res.w.WriteHeader(status)
	_, _ = io.WriteString(res.w, body)
}

// Text sends a plain-text body.
func (res *Response) Text(status int, body string) {
	res.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	res.w.WriteHeader(status)
	_, _ = io.WriteString(res.w, body)
}

// Stream writes the output of fn as it is produced, flushing after every
// write when the writer supports it.
//
//	res.Stream(http.StatusOK, "text/event-stream", func(w io.Writer) error {
//	    _, err := fmt.Fprintf(w, "data: %s\n\n", payload)
//	    return err
//	})
func (res *Response) Stream(status int, contentType string, fn func(w io.Writer) error) error {
	if contentType != "" {
		res.w.Header().Set("Content-Type", contentType)
	}
	res.w.WriteHeader(status)
	return fn(flushWriter{w: res.w})
}

// Download serves the file at path as an attachment named name (defaults to
// the file's base name).
func (res *Response) Download(r *http.Request, path string, name ...string) {
	filename := first(name, filepath.Base(path))
	res.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(res.w, r, path)
}

// View renders a template through renderer. The template is rendered into a
// buffer first so a failing template does not leave a partial 200 response.
//
//	res.View(views, http.StatusOK, "home", map[string]any{"title": "Home"})
func (res *Response) View(renderer Renderer, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := renderer.Render(&buf, name, data); err != nil {
		return err
	}
	res.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	res.w.WriteHeader(status)
	_, err := buf.WriteTo(res.w)
	return err
}

// ── Redirects ────────────────────────────────────────────────────────────────

// Redirect performs an HTTP redirect.
//
//	res.Redirect(http.StatusFound, "/dashboard")
func (res *Response) Redirect(status int, url string) {
	res.w.Header().Set("Location", url)
	res.w.WriteHeader(status)
}

// RedirectTo performs a 302 redirect.
func (res *Response) RedirectTo(url string) {
	res.Redirect(http.StatusFound, url)
}

// RedirectBack redirects to the Referer header (or fallback URL).
func (res *Response) RedirectBack(r *http.Request, fallback string) {
	ref := r.Referer()
	if ref == "" {
		ref = fallback
	}
	res.Redirect(http.StatusFound, ref)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

type envelope map[string]any

func first(ss []string, fallback string) string {
	if len(ss) > 0 && ss[0] != "" {
		return ss[0]
	}
	return fallback
}

type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}
