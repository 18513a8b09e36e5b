package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"go.uber.org/zap"

	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/http/middleware"
	"github.com/km-arc/go-foundation/framework/http/validation"
)

// Views finds and renders templates. *view.Engine implements it.
type Views interface {
	Exists(name string) bool
	Render(w io.Writer, name string, data any) error
}

// PanicError is a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes a panicked error, so Abort's HTTPError keeps its status.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// ExceptionHandler reports and renders every error that reaches the HTTP
// boundary.
type ExceptionHandler struct {
	log   *zap.Logger
	debug bool
	views Views

	dontReport []error
}

// NewExceptionHandler creates a handler. views may be nil.
func NewExceptionHandler(log *zap.Logger, debug bool, views Views) *ExceptionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExceptionHandler{log: log, debug: debug, views: views}
}

// DontReport skips reporting errors matching any of errs.
func (h *ExceptionHandler) DontReport(errs ...error) {
	h.dontReport = append(h.dontReport, errs...)
}

// Handle reports err and renders it.
func (h *ExceptionHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	h.Report(r, err)
	h.Render(w, r, err)
}

// ShouldReport is false for client errors and ignored errors.
func (h *ExceptionHandler) ShouldReport(err error) bool {
	if err == nil || statusOf(err) < 500 {
		return false
	}
	for _, skip := range h.dontReport {
		if errors.Is(err, skip) {
			return false
		}
	}
	return true
}

// Report logs err. r may be nil.
func (h *ExceptionHandler) Report(r *http.Request, err error) {
	if !h.ShouldReport(err) {
		return
	}
	fields := []zap.Field{zap.Error(err), zap.Int("status", statusOf(err))}
	if r != nil {
		fields = append(fields,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
		)
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		fields = append(fields, zap.ByteString("stack", pe.Stack))
	}
	h.log.Error("unhandled error", fields...)
}

// Render writes the error response: JSON for JSON clients, the debug page
// when debugging, the errors.<status> view when there is one, and a plain
// page otherwise.
func (h *ExceptionHandler) Render(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	var he *gohttp.HTTPError
	if errors.As(err, &he) {
		for k, v := range he.Headers {
			w.Header().Set(k, v)
		}
	}

	var ve *validation.Errors
	errors.As(err, &ve)

	res := gohttp.NewResponse(w)
	if gohttp.NewRequest(r).WantsJSON() {
		if ve != nil {
			res.JSON(status, map[string]any{"message": "The given data was invalid.", "errors": ve.Bag})
			return
		}
		res.JSON(status, h.jsonBody(status, err))
		return
	}
	if h.debug && status >= 500 {
		h.renderDebug(w, status, err)
		return
	}
	if h.views != nil {
		name := "errors." + strconv.Itoa(status)
		if h.views.Exists(name) {
			data := map[string]any{"Status": status, "Message": h.message(status, err)}
			if ve != nil {
				data["Errors"] = ve.Bag
			}
			if res.View(h.views, status, name, data) == nil {
				return
			}
		}
	}
	res.HTML(status, plainPage(status))
}

// statusOf is gohttp.StatusOf with failed validation mapped to 422.
func statusOf(err error) int {
	var ve *validation.Errors
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity
	}
	return gohttp.StatusOf(err)
}

// message is the text shown to clients. Server errors hide their cause unless
// debugging.
func (h *ExceptionHandler) message(status int, err error) string {
	var he *gohttp.HTTPError
	if errors.As(err, &he) && he.Message != "" && (status < 500 || h.debug) {
		return he.Message
	}
	if status >= 500 {
		if h.debug {
			return err.Error()
		}
		return "Server Error."
	}
	return gohttp.StatusText(status) + "."
}

func (h *ExceptionHandler) jsonBody(status int, err error) map[string]any {
	body := map[string]any{"message": h.message(status, err)}
	if h.debug && status >= 500 {
		body["exception"] = fmt.Sprintf("%T", rootCause(err))
		body["trace"] = traceLines(err)
	}
	return body
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func chain(err error) []string {
	var out []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		out = append(out, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	return out
}

func traceLines(err error) []string {
	var pe *PanicError
	stack := debug.Stack()
	if errors.As(err, &pe) && len(pe.Stack) > 0 {
		stack = pe.Stack
	}
	lines := strings.Split(strings.TrimSpace(string(stack)), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

var debugPage = template.Must(template.New("debug").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Status}} {{.Text}}</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;background:#f7f7f8;color:#1f2328}
header{background:#b42318;color:#fff;padding:24px 32px}
header h1{margin:0 0 8px;font-size:22px}
section{padding:16px 32px}
h2{font-size:15px;text-transform:uppercase;color:#6e7781}
ol{padding-left:20px}
pre{background:#fff;border:1px solid #d0d7de;padding:16px;overflow:auto;font-size:12px}
</style>
</head>
<body>
<header><h1>{{.Type}}</h1><div>{{.Message}}</div></header>
<section>
<h2>Error chain</h2>
<ol>{{range .Chain}}<li><code>{{.}}</code></li>{{end}}</ol>
</section>
<section>
<h2>Stack</h2>
<pre>{{.Stack}}</pre>
</section>
<section>
<h2>Request</h2>
<p>{{.Status}} {{.Text}}</p>
</section>
</body>
</html>
`))

func (h *ExceptionHandler) renderDebug(w http.ResponseWriter, status int, err error) {
	var buf bytes.Buffer
	_ = debugPage.Execute(&buf, map[string]any{
		"Status":  status,
		"Text":    gohttp.StatusText(status),
		"Type":    fmt.Sprintf("%T", rootCause(err)),
		"Message": err.Error(),
		"Chain":   chain(err),
		"Stack":   strings.Join(traceLines(err), "\n"),
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func plainPage(status int) string {
	text := template.HTMLEscapeString(gohttp.StatusText(status))
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>%[2]s</title></head>
<body style="font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;height:100vh;margin:0;color:#6e7781">
<div>%[1]d | %[2]s</div>
</body>
</html>
`, status, text)
}
