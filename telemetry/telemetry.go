// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package telemetry owns the process wide trace and metric pipeline.
//
// Every signal is exported as protobuf over HTTP to the resolved
// endpoint. gRPC and console exporters can be added as mirrors.
//
// A [Bundle] is built once at startup, installed with [Bundle.Start] and
// flushed with [Bundle.Shutdown] before the process exits.
package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/weather/otlpendpoint"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

const (
	DefaultServiceName     = "server"
	DefaultExportInterval  = 10 * time.Second
	DefaultProbeDelay      = 2 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// DefaultProbeTimeout bounds the endpoint probe request.
const DefaultProbeTimeout = 10 * time.Second

type options struct {
	serviceName        string
	endpoint           string
	exportInterval     time.Duration
	probeDelay         time.Duration
	shutdownTimeout    time.Duration
	insecureSkipVerify bool
	grpcMirror         string
	consoleMirror      io.Writer
	probeClient        *http.Client
	log                *slog.Logger
}

func (o options) tlsConfig() *tls.Config {
	if !o.insecureSkipVerify {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true}
}

// Option configures a [Bundle].
type Option func(*options)

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) Option {
	return func(o *options) {
		o.serviceName = name
	}
}

// Endpoint sets the resolved HTTP base URL. The v1/traces and
// v1/metrics signal paths are appended to it.
func Endpoint(url string) Option {
	return func(o *options) {
		o.endpoint = url
	}
}

// ExportInterval sets how often metrics are exported.
func ExportInterval(d time.Duration) Option {
	return func(o *options) {
		o.exportInterval = d
	}
}

// ProbeDelay sets how long after Start the endpoint probe is sent.
func ProbeDelay(d time.Duration) Option {
	return func(o *options) {
		o.probeDelay = d
	}
}

// ShutdownTimeout bounds Shutdown when its context has no deadline.
func ShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// InsecureSkipVerify disables certificate verification for the HTTP
// exporters and the probe. Only meant for self-signed development collectors.
func InsecureSkipVerify(skip bool) Option {
	return func(o *options) {
		o.insecureSkipVerify = skip
	}
}

// MirrorGRPC additionally exports every signal over gRPC to endpoint.
func MirrorGRPC(endpoint string) Option {
	return func(o *options) {
		o.grpcMirror = endpoint
	}
}

// MirrorConsole additionally writes every signal to w.
func MirrorConsole(w io.Writer) Option {
	return func(o *options) {
		o.consoleMirror = w
	}
}

// ProbeClient overrides the client used for the endpoint probe.
func ProbeClient(c *http.Client) Option {
	return func(o *options) {
		o.probeClient = c
	}
}

// Logger
func Logger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Bundle holds the exporters and providers for traces and metrics.
type Bundle struct {
	opts options

	tp   *sdktrace.TracerProvider
	mp   *sdkmetric.MeterProvider
	conn *grpc.ClientConn

	startOnce   sync.Once
	started     atomic.Bool
	cancelProbe context.CancelFunc
	probeDone   chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a Bundle. Nothing is installed globally until Start.
func New(ctx context.Context, opts ...Option) (*Bundle, error) {
	o := options{
		serviceName:     DefaultServiceName,
		endpoint:        otlpendpoint.DefaultFallback,
		exportInterval:  DefaultExportInterval,
		probeDelay:      DefaultProbeDelay,
		shutdownTimeout: DefaultShutdownTimeout,
		log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.probeClient == nil {
		o.probeClient = newProbeClient(o)
	}

	res, err := resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(o.serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	p, err := newPipeline(ctx, o)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, se := range p.spans {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(se)))
	}
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, me := range p.metrics {
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			me,
			sdkmetric.WithInterval(o.exportInterval),
		)))
	}

	return &Bundle{
		opts:      o,
		tp:        sdktrace.NewTracerProvider(tpOpts...),
		mp:        sdkmetric.NewMeterProvider(mpOpts...),
		conn:      p.conn,
		probeDone: make(chan struct{}),
	}, nil
}

// TracerProvider
func (b *Bundle) TracerProvider() trace.TracerProvider {
	return b.tp
}

// MeterProvider
func (b *Bundle) MeterProvider() metric.MeterProvider {
	return b.mp
}

// Start installs the providers, propagator and error handler globally
// and schedules the endpoint probe. Only the first call has any effect.
func (b *Bundle) Start(ctx context.Context) error {
	b.startOnce.Do(func() {
		otel.SetTracerProvider(b.tp)
		otel.SetMeterProvider(b.mp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			b.opts.log.Error("telemetry export failed", slog.Any("error", err))
		}))

		b.opts.log.InfoContext(
			ctx,
			"telemetry started",
			slog.String("endpoint", b.opts.endpoint),
			slog.String("service_name", b.opts.serviceName),
			slog.Bool("grpc_mirror", b.opts.grpcMirror != ""),
			slog.Bool("console_mirror", b.opts.consoleMirror != nil),
		)

		probeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancelProbe = cancel
		b.started.Store(true)
		go b.probe(probeCtx)
	})
	return nil
}

// Shutdown stops the probe and flushes metrics then traces. Only the
// first call does any work; later calls return its result.
func (b *Bundle) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.opts.shutdownTimeout)
			defer cancel()
		}

		if b.started.Load() {
			b.cancelProbe()
			<-b.probeDone
		}

		errs := []error{
			b.mp.Shutdown(ctx),
			b.tp.Shutdown(ctx),
		}
		if b.conn != nil {
			errs = append(errs, b.conn.Close())
		}

		b.shutdownErr = errors.Join(errs...)
		if b.shutdownErr != nil {
			b.opts.log.ErrorContext(ctx, "telemetry shutdown failed", slog.Any("error", b.shutdownErr))
			return
		}
		b.opts.log.InfoContext(ctx, "telemetry shut down")
	})
	return b.shutdownErr
}
