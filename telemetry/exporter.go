// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ExporterError
type ExporterError struct {
	Signal string
	Cause  error
}

// Error implements the [error] interface.
func (e ExporterError) Error() string {
	return fmt.Sprintf("failed to create %s exporter: %s", e.Signal, e.Cause)
}

// Unwrap
func (e ExporterError) Unwrap() error {
	return e.Cause
}

// SignalURL joins the base endpoint and a signal path such as v1/traces.
func SignalURL(base, signal string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(signal, "/")
}

// pipeline is the set of exporters every signal is fanned out to.
// The first pair always targets the HTTP endpoint.
type pipeline struct {
	spans   []sdktrace.SpanExporter
	metrics []sdkmetric.Exporter
	conn    *grpc.ClientConn
}

func (p *pipeline) add(se sdktrace.SpanExporter, me sdkmetric.Exporter) {
	p.spans = append(p.spans, se)
	p.metrics = append(p.metrics, me)
}

func (p *pipeline) close() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func newPipeline(ctx context.Context, o options) (*pipeline, error) {
	p := &pipeline{}

	se, me, err := newHTTPExporters(ctx, o)
	if err != nil {
		return nil, err
	}
	p.add(se, me)

	if o.grpcMirror != "" {
		conn, se, me, err := newGRPCExporters(ctx, o.grpcMirror)
		if err != nil {
			return nil, err
		}
		p.conn = conn
		p.add(se, me)
	}

	if o.consoleMirror != nil {
		se, me, err := newConsoleExporters(o)
		if err != nil {
			p.close()
			return nil, err
		}
		p.add(se, me)
	}
	return p, nil
}

func newHTTPExporters(ctx context.Context, o options) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(SignalURL(o.endpoint, "v1/traces")),
	}
	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(SignalURL(o.endpoint, "v1/metrics")),
	}
	if cfg := o.tlsConfig(); cfg != nil {
		traceOpts = append(traceOpts, otlptracehttp.WithTLSClientConfig(cfg))
		metricOpts = append(metricOpts, otlpmetrichttp.WithTLSClientConfig(cfg))
	}

	se, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, ExporterError{Signal: "trace", Cause: err}
	}

	me, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, nil, ExporterError{Signal: "metric", Cause: err}
	}
	return se, me, nil
}

func newGRPCExporters(ctx context.Context, endpoint string) (*grpc.ClientConn, sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	target, creds := grpcTarget(endpoint)
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, nil, ExporterError{Signal: "grpc connection", Cause: err}
	}

	se, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, nil, nil, ExporterError{Signal: "grpc trace", Cause: err}
	}

	me, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, nil, nil, ExporterError{Signal: "grpc metric", Cause: err}
	}
	return conn, se, me, nil
}

// grpcTarget strips the scheme from endpoint. https endpoints use TLS.
func grpcTarget(endpoint string) (string, credentials.TransportCredentials) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint, insecure.NewCredentials()
	}
	if u.Scheme == "https" {
		return u.Host, credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return u.Host, insecure.NewCredentials()
}

func newConsoleExporters(o options) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	se, err := stdouttrace.New(stdouttrace.WithWriter(o.consoleMirror))
	if err != nil {
		return nil, nil, ExporterError{Signal: "console trace", Cause: err}
	}

	me, err := stdoutmetric.New(stdoutmetric.WithWriter(o.consoleMirror))
	if err != nil {
		return nil, nil, ExporterError{Signal: "console metric", Cause: err}
	}
	return se, me, nil
}
