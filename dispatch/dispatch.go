// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package dispatch offers each request to an ordered list of protocol
// handlers before falling through to the application router.
package dispatch

import (
	"bytes"
	"io"
	"net/http"
)

// Response is a fully produced response from a protocol [Handler].
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Result is the outcome of offering a request to a [Handler]. Response
// is only meaningful when Matched is true.
type Result struct {
	Matched  bool
	Response *Response
}

// NotMatched is the Result of a Handler declining a request.
var NotMatched = Result{}

// Matched returns a Result which carries resp.
func Matched(resp *Response) Result {
	return Result{Matched: true, Response: resp}
}

// Options are passed to a [Handler] for a single offer.
type Options struct {
	// Prefix is the URL path prefix the Handler is mounted on.
	Prefix string

	// Context is shared by every Handler offered the same request.
	Context *Context
}

// Handler decides whether it handles a request and, if it does,
// produces the complete response.
//
// Handlers must not write anything for requests they decline and must
// turn their own failures into responses.
type Handler interface {
	Handle(*http.Request, Options) Result
}

// HandlerFunc is a functional implementation of the [Handler] interface.
type HandlerFunc func(*http.Request, Options) Result

// Handle implements the [Handler] interface.
func (f HandlerFunc) Handle(r *http.Request, opts Options) Result {
	return f(r, opts)
}

type route struct {
	prefix  string
	handler Handler
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// Route appends a Handler mounted on prefix. Handlers are offered
// requests in the order they were added.
func Route(prefix string, h Handler) Option {
	return func(d *Dispatcher) {
		d.routes = append(d.routes, route{prefix: prefix, handler: h})
	}
}

// WithContextFunc overrides how the per request [Context] is built.
func WithContextFunc(f ContextFunc) Option {
	return func(d *Dispatcher) {
		d.newContext = f
	}
}

// Dispatcher is a [http.Handler] which tries its protocol handlers
// in order and serves the first match. Unmatched requests are passed
// to the next handler unchanged.
type Dispatcher struct {
	routes     []route
	newContext ContextFunc
	next       http.Handler
}

// New returns a Dispatcher which falls through to next.
func New(next http.Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		newContext: NewContext,
		next:       next,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ServeHTTP implements the [http.Handler] interface.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dctx := d.newContext(r)
	if dctx != nil && dctx.RequestID != "" {
		w.Header().Set(RequestIDHeader, dctx.RequestID)
	}

	for _, rt := range d.routes {
		res := rt.handler.Handle(r, Options{
			Prefix:  rt.prefix,
			Context: dctx,
		})
		if !res.Matched {
			continue
		}

		writeResponse(w, res.Response)
		return
	}

	d.next.ServeHTTP(w, r)
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	_, _ = io.Copy(w, bytes.NewReader(resp.Body))
}
