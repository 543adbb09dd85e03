// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package logging builds the JSON logger used across the service.
//
// Records logged with a context carrying a valid span are stamped with
// trace_id, span_id and trace_flags so they can be joined with the
// exported traces.
package logging

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type options struct {
	level   slog.Leveler
	service string
	source  bool
}

// Option configures [New].
type Option func(*options)

// Level sets the minimum level logged. Defaults to INFO.
func Level(l slog.Leveler) Option {
	return func(o *options) {
		o.level = l
	}
}

// Service adds a service attribute to every record.
func Service(name string) Option {
	return func(o *options) {
		o.service = name
	}
}

// Source toggles the source file and line of the log call. On by default.
func Source(enabled bool) Option {
	return func(o *options) {
		o.source = enabled
	}
}

// New returns a trace correlated logger writing JSON records to w.
func New(w io.Writer, opts ...Option) *slog.Logger {
	o := options{
		level:  slog.LevelInfo,
		source: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: o.source,
		Level:     o.level,
	})
	if o.service != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", o.service)})
	}
	return slog.New(NewTraceHandler(h))
}

// TraceHandler is a [slog.Handler] which adds the active span's
// identifiers to each record before passing it on.
type TraceHandler struct {
	next slog.Handler
}

// NewTraceHandler wraps next.
func NewTraceHandler(next slog.Handler) *TraceHandler {
	return &TraceHandler{next: next}
}

// Enabled implements the [slog.Handler] interface.
func (h *TraceHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

// Handle implements the [slog.Handler] interface.
func (h *TraceHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return h.next.Handle(ctx, record)
	}

	r := record.Clone()
	r.AddAttrs(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
		slog.String("trace_flags", sc.TraceFlags().String()),
	)
	return h.next.Handle(ctx, r)
}

// WithAttrs implements the [slog.Handler] interface.
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewTraceHandler(h.next.WithAttrs(attrs))
}

// WithGroup implements the [slog.Handler] interface.
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return NewTraceHandler(h.next.WithGroup(name))
}
