// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package procedure

import (
	"context"
	"fmt"
)

// Invoker runs a procedure.
type Invoker func(context.Context, Procedure) (any, error)

// Interceptor wraps every procedure invocation made through a [Router].
type Interceptor func(next Invoker) Invoker

// OnError returns an Interceptor which calls f with every error
// returned by a procedure. The error is passed on unchanged.
func OnError(f func(context.Context, error)) Interceptor {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, p Procedure) (any, error) {
			out, err := next(ctx, p)
			if err != nil {
				f(ctx, err)
			}
			return out, err
		}
	}
}

// RouterOption
type RouterOption func(*Router)

// Intercept appends interceptors. The first interceptor is the outermost.
func Intercept(is ...Interceptor) RouterOption {
	return func(r *Router) {
		r.interceptors = append(r.interceptors, is...)
	}
}

// Register adds procedures to the router in order.
func Register(ps ...Procedure) RouterOption {
	return func(r *Router) {
		for _, p := range ps {
			r.add(p)
		}
	}
}

// Router holds procedures in registration order.
type Router struct {
	procs        []Procedure
	byPath       map[string]Procedure
	interceptors []Interceptor
}

// NewRouter returns a Router. It panics if two procedures share a path.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		byPath: make(map[string]Procedure),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) add(p Procedure) {
	if _, exists := r.byPath[p.Path()]; exists {
		panic(fmt.Sprintf("procedure: duplicate path %q", p.Path()))
	}
	r.procs = append(r.procs, p)
	r.byPath[p.Path()] = p
}

// Procedures returns every procedure in registration order.
func (r *Router) Procedures() []Procedure {
	ps := make([]Procedure, len(r.procs))
	copy(ps, r.procs)
	return ps
}

// Lookup finds a procedure by path.
func (r *Router) Lookup(path string) (Procedure, bool) {
	p, ok := r.byPath[path]
	return p, ok
}

// Invoke decodes the input with decode and runs p through the
// router's interceptors.
func (r *Router) Invoke(ctx context.Context, p Procedure, decode Decoder) (any, error) {
	var invoke Invoker = func(ctx context.Context, p Procedure) (any, error) {
		return p.call(ctx, decode)
	}
	for i := len(r.interceptors) - 1; i >= 0; i-- {
		invoke = r.interceptors[i](invoke)
	}
	return invoke(ctx, p)
}
