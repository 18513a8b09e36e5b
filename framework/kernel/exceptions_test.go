package kernel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/http/middleware"
)

func render(h *ExceptionHandler, err error, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rr := httptest.NewRecorder()
	h.Render(rr, req, err)
	return rr
}

// ── Report ───────────────────────────────────────────────────────────────────

func TestReport(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewExceptionHandler(zap.New(core), false, nil)
	ignored := errors.New("client went away")
	h.DontReport(ignored)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req = req.WithContext(middleware.WithRequestID(req.Context(), "req-1"))

	h.Report(req, gohttp.NewError(http.StatusNotFound))
	h.Report(req, fmt.Errorf("write: %w", ignored))
	h.Report(req, nil)
	h.Report(req, errors.New("db is down"))
	h.Report(nil, gohttp.Wrap(http.StatusBadGateway, context.DeadlineExceeded))

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0].ContextMap()
	assert.Equal(t, "db is down", first["error"])
	assert.Equal(t, int64(500), first["status"])
	assert.Equal(t, "POST", first["method"])
	assert.Equal(t, "req-1", first["request_id"])
	assert.Equal(t, int64(502), logs.All()[1].ContextMap()["status"])
}

// ── Render ───────────────────────────────────────────────────────────────────

func TestRender_JSON(t *testing.T) {
	h := NewExceptionHandler(nil, false, nil)

	rr := render(h, errors.New("secret dsn leaked"), "application/json")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, `{"message":"Server Error."}`+"\n", rr.Body.String())

	rr = render(h, gohttp.NewError(http.StatusTooManyRequests), "application/json")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, `{"message":"Too Many Requests"}`+"\n", rr.Body.String())
}

func TestRender_DebugJSON(t *testing.T) {
	h := NewExceptionHandler(nil, true, nil)
	err := fmt.Errorf("load order: %w", errors.New("db is down"))

	rr := render(h, err, "application/json")
	body := decode(t, rr)
	assert.Equal(t, "load order: db is down", body["message"])
	assert.Equal(t, "*errors.errorString", body["exception"])
	assert.NotEmpty(t, body["trace"])
}

func TestRender_DebugPage(t *testing.T) {
	h := NewExceptionHandler(nil, true, nil)
	err := fmt.Errorf("load order: %w", errors.New("<db> is down"))

	rr := render(h, err, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, "Error chain")
	assert.Contains(t, body, "*fmt.wrapError: load order: &lt;db&gt; is down")
	assert.Contains(t, body, "*errors.errorString: &lt;db&gt; is down")

	// Client errors never show the debug page.
	rr = render(h, gohttp.NewError(http.StatusNotFound), "")
	assert.NotContains(t, rr.Body.String(), "Error chain")
}

func TestRender_ErrorViews(t *testing.T) {
	h := NewExceptionHandler(nil, false, stubViews{"errors.404": true})

	rr := render(h, gohttp.NewError(http.StatusNotFound, "No such order."), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "errors.404:map[Message:No such order. Status:404]", rr.Body.String())

	rr = render(h, errors.New("boom"), "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "500 | Server Error")
}

func TestPanicErrorUnwrap(t *testing.T) {
	pe := &PanicError{Value: gohttp.NewError(http.StatusConflict)}
	assert.Equal(t, http.StatusConflict, gohttp.StatusOf(pe))
	assert.Equal(t, "panic: 409 Conflict", pe.Error())

	pe = &PanicError{Value: 42}
	assert.Nil(t, pe.Unwrap())
	assert.Equal(t, http.StatusInternalServerError, gohttp.StatusOf(pe))
}
