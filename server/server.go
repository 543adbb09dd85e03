// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server runs the HTTP front door of the weather API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/weather/health"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type options struct {
	port              uint
	listener          net.Listener
	handler           http.Handler
	log               *slog.Logger
	readiness         *health.Binary
	corsOrigin        string
	readTimeout       time.Duration
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
}

// Option configures a [Runtime].
type Option func(*options)

// ListenOnPort will configure the HTTP server to listen on the given port.
//
// Default port is 8080.
func ListenOnPort(port uint) Option {
	return func(o *options) {
		o.port = port
	}
}

// Listener serves on ls instead of opening a port.
func Listener(ls net.Listener) Option {
	return func(o *options) {
		o.listener = ls
	}
}

// Handler sets the root handler.
func Handler(h http.Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// Logger
func Logger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Readiness is set healthy once serving and unhealthy once shutdown begins.
func Readiness(b *health.Binary) Option {
	return func(o *options) {
		o.readiness = b
	}
}

// CORSOrigin sets the allowed cross origin callers. Empty allows any origin.
func CORSOrigin(origin string) Option {
	return func(o *options) {
		o.corsOrigin = origin
	}
}

// ReadTimeout defaults to 5 seconds.
func ReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// ReadHeaderTimeout defaults to 2 seconds.
func ReadHeaderTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readHeaderTimeout = d
	}
}

// WriteTimeout defaults to 10 seconds.
func WriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// IdleTimeout defaults to 120 seconds.
func IdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// ShutdownTimeout bounds the graceful drain. Defaults to 10 seconds.
func ShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// Runtime is a HTTP server which drains gracefully once its context is cancelled.
type Runtime struct {
	port            uint
	listener        net.Listener
	listen          func(string, string) (net.Listener, error)
	log             *slog.Logger
	readiness       *health.Binary
	shutdownTimeout time.Duration
	srv             *http.Server
}

// New returns a Runtime.
func New(opts ...Option) *Runtime {
	o := options{
		port:              8080,
		handler:           http.NotFoundHandler(),
		log:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		readiness:         new(health.Binary),
		readTimeout:       5 * time.Second,
		readHeaderTimeout: 2 * time.Second,
		writeTimeout:      10 * time.Second,
		idleTimeout:       120 * time.Second,
		shutdownTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := otelhttp.NewHandler(
		LogRequests(o.log)(CORS(o.corsOrigin)(o.handler)),
		"server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	return &Runtime{
		port:            o.port,
		listener:        o.listener,
		listen:          net.Listen,
		log:             o.log,
		readiness:       o.readiness,
		shutdownTimeout: o.shutdownTimeout,
		srv: &http.Server{
			Handler:           h,
			ReadTimeout:       o.readTimeout,
			ReadHeaderTimeout: o.readHeaderTimeout,
			WriteTimeout:      o.writeTimeout,
			IdleTimeout:       o.idleTimeout,
			ErrorLog:          slog.NewLogLogger(o.log.Handler(), slog.LevelWarn),
		},
	}
}

// Run serves until ctx is cancelled and then drains in flight requests.
func (rt *Runtime) Run(ctx context.Context) error {
	ls := rt.listener
	if ls == nil {
		var err error
		ls, err = rt.listen("tcp", fmt.Sprintf(":%d", rt.port))
		if err != nil {
			rt.log.ErrorContext(ctx, "failed to listen for connections", slog.Any("error", err))
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		rt.readiness.Set(false)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), rt.shutdownTimeout)
		defer cancel()
		defer rt.log.Info("shut down server")

		rt.log.Info("shutting down server")
		return rt.srv.Shutdown(ctx)
	})
	g.Go(func() error {
		rt.readiness.Set(true)
		rt.log.Info("started server", slog.String("addr", ls.Addr().String()))
		return rt.srv.Serve(ls)
	})

	err := g.Wait()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	rt.log.ErrorContext(ctx, "server encountered unexpected error", slog.Any("error", err))
	return err
}
