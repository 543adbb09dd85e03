// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package mux provides the method aware router behind the application routes.
package mux

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"
)

// Option configures a [Router].
type Option func(*Router)

// NotFound overrides the handler for requests matching no pattern.
func NotFound(h http.Handler) Option {
	return func(r *Router) {
		r.notFound = h
	}
}

// MethodNotAllowed overrides the handler for requests whose path is
// registered but not for the request method.
func MethodNotAllowed(h http.Handler) Option {
	return func(r *Router) {
		r.methodNotAllowed = h
	}
}

// Router wraps a [http.ServeMux] with plain text 404 and 405 fallbacks.
type Router struct {
	mux *http.ServeMux

	initFallbacksOnce sync.Once
	notFound          http.Handler
	methodNotAllowed  http.Handler

	pathMethods map[string][]string
}

// New returns a Router.
func New(opts ...Option) *Router {
	r := &Router{
		mux:              http.NewServeMux(),
		notFound:         textHandler(http.StatusNotFound),
		methodNotAllowed: textHandler(http.StatusMethodNotAllowed),
		pathMethods:      make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for method and pattern. Patterns ending without a
// slash also match with a trailing slash and vice versa, unless the
// pattern ends in {$} or a {name...} wildcard.
func (r *Router) Handle(method, pattern string, h http.Handler) {
	r.register(method, pattern, h)

	if strings.HasSuffix(pattern, "{$}") {
		return
	}

	if strings.HasSuffix(pattern, "/") {
		trimmed := pattern[:len(pattern)-1]
		if len(trimmed) == 0 {
			return
		}
		r.register(method, trimmed, h)
		return
	}

	if strings.Contains(path.Base(pattern), "...") {
		return
	}
	r.register(method, pattern+"/", h)
}

// Get is shorthand for Handle with [http.MethodGet].
func (r *Router) Get(pattern string, f http.HandlerFunc) {
	r.Handle(http.MethodGet, pattern, f)
}

func (r *Router) register(method, pattern string, h http.Handler) {
	r.pathMethods[pattern] = append(r.pathMethods[pattern], method)
	r.mux.Handle(fmt.Sprintf("%s %s", method, pattern), h)
}

// ServeHTTP implements the [http.Handler] interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.initFallbacksOnce.Do(r.registerFallbacks)

	r.mux.ServeHTTP(w, req)
}

// methods a path item can declare.
var knownMethods = []string{
	http.MethodGet,
	http.MethodPut,
	http.MethodPost,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodHead,
	http.MethodPatch,
	http.MethodTrace,
}

func (r *Router) registerFallbacks() {
	if r.notFound != nil {
		r.mux.Handle("/{path...}", r.notFound)
	}
	if r.methodNotAllowed == nil {
		return
	}

	for pattern, methods := range r.pathMethods {
		for _, method := range knownMethods {
			if slices.Contains(methods, method) {
				continue
			}
			// GET registrations also serve HEAD
			if method == http.MethodHead && slices.Contains(methods, http.MethodGet) {
				continue
			}
			r.mux.Handle(fmt.Sprintf("%s %s", method, pattern), r.methodNotAllowed)
		}
	}
}

func textHandler(status int) http.Handler {
	body := fmt.Sprintf("%d %s", status, http.StatusText(status))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}
