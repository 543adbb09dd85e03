// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package instrument wraps units of work in OpenTelemetry spans.
//
// Spans nest through the [context.Context] handed to the work: any span
// started from that context becomes a child of the span which wraps the
// work. Every span started here is ended exactly once, whether the work
// returns normally, returns an error or panics.
package instrument

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded by [Tracer.Capture] when the captured work fails.
const (
	ErrorKey        = attribute.Key("error")
	ErrorMessageKey = attribute.Key("error.message")
)

// Tracer starts spans around units of work.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the named tracer of tp.
func NewTracer(tp trace.TracerProvider, name string, opts ...trace.TracerOption) Tracer {
	return Tracer{
		tracer: tp.Tracer(name, opts...),
	}
}

// WithSpan runs work inside a new span called name. The context given to
// work carries the span, so spans started from it nest underneath.
//
// Errors returned by work are recorded on the span and returned unchanged.
// Panics are recorded and then re-raised once the span has ended.
func (t Tracer) WithSpan(ctx context.Context, name string, work func(context.Context) error, opts ...trace.SpanStartOption) error {
	_, err := WithSpanValue(ctx, t, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	}, opts...)
	return err
}

// WithSpanValue is the value returning form of [Tracer.WithSpan].
func WithSpanValue[T any](ctx context.Context, t Tracer, name string, work func(context.Context) (T, error), opts ...trace.SpanStartOption) (v T, err error) {
	spanCtx, span := t.tracer.Start(ctx, name, opts...)
	defer func() {
		r := recover()
		if r != nil {
			recordPanic(span, r)
			span.End()
			panic(r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return work(spanCtx)
}

// Capture runs work inside a child span called name. A failure of work is
// recorded on the span as the attributes error=true and error.message and
// is not returned, which lets the calling operation carry on. The span is
// ended before Capture returns.
//
// work is given the span so it can record attributes of a successful run.
func (t Tracer) Capture(ctx context.Context, name string, work func(context.Context, trace.Span) error, opts ...trace.SpanStartOption) {
	spanCtx, span := t.tracer.Start(ctx, name, opts...)
	defer span.End()

	err := work(spanCtx, span)
	if err == nil {
		return
	}
	span.SetAttributes(
		ErrorKey.Bool(true),
		ErrorMessageKey.String(err.Error()),
	)
}

func recordPanic(span trace.Span, r any) {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", r)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
