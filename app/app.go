// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app composes the process lifecycle around a running [App].
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
)

// App is anything which runs until its work is done or ctx is cancelled.
type App interface {
	Run(context.Context) error
}

// Func is a functional implementation of the [App] interface.
type Func func(context.Context) error

// Run implements the [App] interface.
func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}

// PanicError carries a value recovered from a panic along with the
// stack it was raised on.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the [error] interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

// Unwrap returns the recovered value if it is itself an error.
func (e PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Recover turns a panic inside app into a [PanicError].
func Recover(app App) App {
	return Func(func(ctx context.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err = errors.Join(err, PanicError{Value: r, Stack: debug.Stack()})
		}()

		return app.Run(ctx)
	})
}

// WithSignalNotifications cancels the context passed to app once any
// of signals is received.
func WithSignalNotifications(app App, signals ...os.Signal) App {
	return Func(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// Lifecycle holds work done around an [App], such as starting and
// flushing the telemetry pipeline.
type Lifecycle struct {
	// PreRun runs before the app. If it fails the app is skipped
	// but PostRun still runs.
	PreRun Func

	// PostRun always runs, even if the app fails or panics. Its
	// context is detached from the run context so a shutdown signal
	// does not cut it short.
	PostRun Func
}

// WithLifecycle wraps app with the hooks in lc. Errors from the app
// and PostRun are joined.
func WithLifecycle(app App, lc Lifecycle) App {
	return Func(func(ctx context.Context) (err error) {
		if lc.PostRun != nil {
			defer func() {
				err = errors.Join(err, lc.PostRun(context.WithoutCancel(ctx)))
			}()
		}

		if lc.PreRun != nil {
			err = lc.PreRun(ctx)
			if err != nil {
				return err
			}
		}

		return app.Run(ctx)
	})
}
