// Package pipeline composes middleware around a final handler.
//
//	h := pipeline.New().Through(requestID, metrics, throttle).Then(router)
//
// The first middleware passed to Through is the outermost: it sees the request
// first and the response last.
package pipeline

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Pipeline is an ordered middleware stack. The zero value is ready to use.
type Pipeline struct {
	pipes []Middleware
}

// New creates a pipeline with the given middleware.
func New(mw ...Middleware) *Pipeline {
	return &Pipeline{pipes: append([]Middleware(nil), mw...)}
}

// Through appends middleware to the stack. nil entries are skipped.
func (p *Pipeline) Through(mw ...Middleware) *Pipeline {
	for _, m := range mw {
		if m != nil {
			p.pipes = append(p.pipes, m)
		}
	}
	return p
}

// Then reduces the stack into a single handler around destination, wrapping
// from the innermost middleware outwards.
func (p *Pipeline) Then(destination http.Handler) http.Handler {
	h := destination
	for i := len(p.pipes) - 1; i >= 0; i-- {
		h = p.pipes[i](h)
	}
	return h
}

// ThenFunc is Then for a handler func.
func (p *Pipeline) ThenFunc(fn http.HandlerFunc) http.Handler {
	return p.Then(fn)
}

// Len reports the number of middleware in the stack.
func (p *Pipeline) Len() int { return len(p.pipes) }

// Chain converts plain func(http.Handler) http.Handler values into Middleware.
func Chain(mw ...func(http.Handler) http.Handler) []Middleware {
	out := make([]Middleware, 0, len(mw))
	for _, m := range mw {
		out = append(out, Middleware(m))
	}
	return out
}
