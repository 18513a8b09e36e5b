package http

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is an error that carries an HTTP status. Handlers return it (or
// panic with it via Abort) and the exception handler renders it.
type HTTPError struct {
	Status  int
	Message string
	Headers map[string]string
	Err     error
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = StatusText(e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, msg, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, msg)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewError builds an HTTPError. An empty message uses the status text.
func NewError(status int, message ...string) *HTTPError {
	return &HTTPError{Status: status, Message: first(message, StatusText(status))}
}

// Wrap builds an HTTPError around err.
func Wrap(status int, err error) *HTTPError {
	return &HTTPError{Status: status, Message: StatusText(status), Err: err}
}

// Abort panics with an HTTPError; the kernel recovers it and renders the
// status. Use it deep inside helpers where returning an error is awkward.
//
//	if post == nil {
//	    gohttp.Abort(http.StatusNotFound)
//	}
func Abort(status int, message ...string) {
	panic(NewError(status, message...))
}

// StatusOf returns the HTTP status for err: the HTTPError status when err
// wraps one, 500 otherwise.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) && he.Status > 0 {
		return he.Status
	}
	return http.StatusInternalServerError
}

var statusTexts = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusPaymentRequired:     "Payment Required",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	419:                            "Page Expired",
	http.StatusUnprocessableEntity: "Unprocessable Content",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Server Error",
	http.StatusServiceUnavailable:  "Service Unavailable",
}

// StatusText returns the text shown on error pages for status; it falls back
// to net/http's table.
func StatusText(status int) string {
	if t, ok := statusTexts[status]; ok {
		return t
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return "Unknown Status"
}
