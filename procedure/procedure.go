// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package procedure defines typed remote procedures which can be served
// over more than one wire protocol.
package procedure

import (
	"context"
	"net/http"
)

// Route is the REST binding of a procedure.
type Route struct {
	Method  string
	Path    string
	Summary string
}

// Decoder fills the given pointer from the transport's input encoding.
type Decoder func(v any) error

// Procedure is a single typed operation.
type Procedure interface {
	// Path is the slash separated procedure name, e.g. weather/forecast.
	Path() string

	// Route is the REST binding used for schema generation.
	Route() Route

	// Input returns a zero value of the input type.
	Input() any

	// Output returns a zero value of the output type.
	Output() any

	call(context.Context, Decoder) (any, error)
}

// Handler
type Handler[In, Out any] func(context.Context, In) (Out, error)

type typed[In, Out any] struct {
	path    string
	route   Route
	handler Handler[In, Out]
}

// New returns a Procedure backed by h.
func New[In, Out any](path string, route Route, h Handler[In, Out]) Procedure {
	if route.Method == "" {
		route.Method = http.MethodGet
	}
	if route.Path == "" {
		route.Path = "/" + path
	}
	return typed[In, Out]{
		path:    path,
		route:   route,
		handler: h,
	}
}

func (p typed[In, Out]) Path() string { return p.path }

func (p typed[In, Out]) Route() Route { return p.route }

func (p typed[In, Out]) Input() any {
	var in In
	return in
}

func (p typed[In, Out]) Output() any {
	var out Out
	return out
}

func (p typed[In, Out]) call(ctx context.Context, decode Decoder) (any, error) {
	var in In
	if decode != nil {
		err := decode(&in)
		if err != nil {
			return nil, Error{
				Code:    CodeFor(http.StatusBadRequest),
				Status:  http.StatusBadRequest,
				Message: "Input validation failed",
				Cause:   err,
			}
		}
	}
	return p.handler(ctx, in)
}
