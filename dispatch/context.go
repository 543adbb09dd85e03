// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dispatch

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID. It is reused when a request
// already has one and is always set on the response.
const RequestIDHeader = "X-Request-Id"

// Context is the request scoped state shared by every protocol
// handler offered a single request.
type Context struct {
	// RequestID identifies the request in logs and responses.
	RequestID string

	// Header is a copy of the inbound request headers.
	Header http.Header

	// Session is the authenticated principal, if any.
	Session any
}

// ContextFunc builds the [Context] for a request.
type ContextFunc func(*http.Request) *Context

// NewContext is the default [ContextFunc]. It reuses an inbound
// X-Request-Id header or generates a new random ID.
func NewContext(r *http.Request) *Context {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	return &Context{
		RequestID: id,
		Header:    r.Header.Clone(),
	}
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying dctx.
func WithContext(ctx context.Context, dctx *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, dctx)
}

// FromContext extracts the [Context] stored by [WithContext].
func FromContext(ctx context.Context) (*Context, bool) {
	dctx, ok := ctx.Value(contextKey{}).(*Context)
	return dctx, ok
}
