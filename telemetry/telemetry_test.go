// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

// syncBuffer is written to by exporter goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type collectedRequest struct {
	path        string
	contentType string
	body        []byte
}

func startCollector(t *testing.T, newServer func(http.Handler) *httptest.Server) (*httptest.Server, <-chan collectedRequest) {
	t.Helper()

	reqs := make(chan collectedRequest, 32)
	srv := newServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		select {
		case reqs <- collectedRequest{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: b}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func newCollector(t *testing.T) (*httptest.Server, <-chan collectedRequest) {
	return startCollector(t, httptest.NewServer)
}

// unreachableEndpoint returns the URL of a server that is no longer listening.
func unreachableEndpoint(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func waitForPath(t *testing.T, reqs <-chan collectedRequest, path string) collectedRequest {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case req := <-reqs:
			if req.path == path {
				return req
			}
		case <-timeout:
			t.Fatalf("no request was sent to %s", path)
		}
	}
}

func drainPaths(reqs <-chan collectedRequest) []string {
	var paths []string
	for {
		select {
		case req := <-reqs:
			paths = append(paths, req.path)
		default:
			return paths
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("will build the http exporters", func(t *testing.T) {
		testCases := []struct {
			name     string
			opts     []Option
			grpcConn bool
		}{
			{
				name: "by default",
			},
			{
				name: "with a console mirror",
				opts: []Option{MirrorConsole(io.Discard)},
			},
			{
				name:     "with a grpc mirror",
				opts:     []Option{MirrorGRPC("http://localhost:4317")},
				grpcConn: true,
			},
			{
				name: "with certificate verification disabled",
				opts: []Option{InsecureSkipVerify(true)},
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.name, func(t *testing.T) {
				b, err := New(context.Background(), testCase.opts...)
				require.Nil(t, err)
				require.NotNil(t, b.TracerProvider())
				require.NotNil(t, b.MeterProvider())
				require.Equal(t, testCase.grpcConn, b.conn != nil)

				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()
				_ = b.Shutdown(ctx)
			})
		}
	})
}

func TestBundle_Shutdown(t *testing.T) {
	t.Run("will flush spans and metrics to the http endpoint", func(t *testing.T) {
		srv, reqs := newCollector(t)

		var out syncBuffer
		b, err := New(
			context.Background(),
			Endpoint(srv.URL),
			ServiceName("weather-test"),
			ProbeDelay(time.Hour),
			MirrorConsole(&out),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))

		_, span := b.TracerProvider().Tracer("telemetry_test").Start(context.Background(), "get-weather-forecast")
		span.End()

		counter, err := b.MeterProvider().Meter("telemetry_test").Int64Counter("api.requests")
		require.Nil(t, err)
		counter.Add(context.Background(), 1)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.Nil(t, b.Shutdown(ctx))

		traces := waitForPath(t, reqs, "/v1/traces")
		require.Equal(t, "application/x-protobuf", traces.contentType)

		var export coltracepb.ExportTraceServiceRequest
		require.Nil(t, proto.Unmarshal(traces.body, &export))
		require.Len(t, export.ResourceSpans, 1)

		metrics := waitForPath(t, reqs, "/v1/metrics")
		require.Equal(t, "application/x-protobuf", metrics.contentType)

		require.Contains(t, out.String(), "get-weather-forecast")
		require.Contains(t, out.String(), "api.requests")
		require.Contains(t, out.String(), "weather-test")
	})

	t.Run("will only shut down once", func(t *testing.T) {
		srv, _ := newCollector(t)

		b, err := New(context.Background(), Endpoint(srv.URL), ProbeDelay(time.Hour))
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))

		require.Nil(t, b.Shutdown(context.Background()))
		require.Nil(t, b.Shutdown(context.Background()))
	})

	t.Run("will succeed without being started", func(t *testing.T) {
		srv, _ := newCollector(t)

		b, err := New(context.Background(), Endpoint(srv.URL))
		require.Nil(t, err)
		require.Nil(t, b.Shutdown(context.Background()))
	})

	t.Run("will return within the shutdown timeout if the collector is unreachable", func(t *testing.T) {
		var logs syncBuffer
		b, err := New(
			context.Background(),
			Endpoint(unreachableEndpoint(t)),
			ProbeDelay(time.Hour),
			ShutdownTimeout(200*time.Millisecond),
			Logger(slog.New(slog.NewJSONHandler(&logs, nil))),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))

		_, span := b.TracerProvider().Tracer("telemetry_test").Start(context.Background(), "get-weather-forecast")
		span.End()

		counter, err := b.MeterProvider().Meter("telemetry_test").Int64Counter("api.requests")
		require.Nil(t, err)
		counter.Add(context.Background(), 1)

		start := time.Now()
		err = b.Shutdown(context.Background())
		require.Error(t, err)
		require.Less(t, time.Since(start), 5*time.Second)
		require.Contains(t, logs.String(), "telemetry shutdown failed")

		// later calls report the same joined error
		require.Equal(t, err, b.Shutdown(context.Background()))
	})
}

func TestBundle_Start(t *testing.T) {
	t.Run("will log export errors instead of propagating them", func(t *testing.T) {
		srv, _ := newCollector(t)

		var logs syncBuffer
		b, err := New(
			context.Background(),
			Endpoint(srv.URL),
			ProbeDelay(time.Hour),
			Logger(slog.New(slog.NewJSONHandler(&logs, nil))),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))
		defer b.Shutdown(context.Background())

		require.NotPanics(t, func() {
			otel.Handle(errors.New("connection refused"))
		})
		require.Contains(t, logs.String(), "telemetry export failed")
		require.Contains(t, logs.String(), "connection refused")
	})

	t.Run("will not affect requests while the collector is down", func(t *testing.T) {
		b, err := New(
			context.Background(),
			Endpoint(unreachableEndpoint(t)),
			ProbeDelay(time.Millisecond),
			ExportInterval(10*time.Millisecond),
			ShutdownTimeout(200*time.Millisecond),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))
		defer b.Shutdown(context.Background())

		h := otelhttp.NewHandler(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "OK")
			}),
			"weather",
			otelhttp.WithTracerProvider(b.TracerProvider()),
			otelhttp.WithMeterProvider(b.MeterProvider()),
		)

		for range 3 {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "OK", w.Body.String())
		}
	})
}

func TestBundle_Start_EndpointCheck(t *testing.T) {
	t.Run("will post an empty protobuf trace export", func(t *testing.T) {
		srv, reqs := newCollector(t)

		var logs syncBuffer
		b, err := New(
			context.Background(),
			Endpoint(srv.URL),
			ProbeDelay(10*time.Millisecond),
			Logger(slog.New(slog.NewJSONHandler(&logs, nil))),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))

		req := waitForPath(t, reqs, "/v1/traces")
		require.Equal(t, "application/x-protobuf", req.contentType)

		var export coltracepb.ExportTraceServiceRequest
		require.Nil(t, proto.Unmarshal(req.body, &export))
		require.Empty(t, export.ResourceSpans)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.Nil(t, b.Shutdown(ctx))
		require.Contains(t, logs.String(), "otlp endpoint probe completed")
	})

	t.Run("will be cancelled by shutdown", func(t *testing.T) {
		srv, reqs := newCollector(t)

		b, err := New(
			context.Background(),
			Endpoint(srv.URL),
			ProbeDelay(time.Hour),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.Nil(t, b.Shutdown(ctx))

		require.NotContains(t, drainPaths(reqs), "/v1/traces")
	})

	t.Run("will log a warning if the endpoint is unreachable", func(t *testing.T) {
		var logs syncBuffer
		b, err := New(
			context.Background(),
			Endpoint(unreachableEndpoint(t)),
			ProbeDelay(time.Millisecond),
			ShutdownTimeout(200*time.Millisecond),
			Logger(slog.New(slog.NewJSONHandler(&logs, nil))),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))
		defer b.Shutdown(context.Background())

		require.Eventually(t, func() bool {
			return strings.Contains(logs.String(), "otlp endpoint probe failed")
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("will reach a self-signed collector if verification is skipped", func(t *testing.T) {
		srv, reqs := startCollector(t, httptest.NewTLSServer)

		b, err := New(
			context.Background(),
			Endpoint(srv.URL),
			ProbeDelay(time.Millisecond),
			InsecureSkipVerify(true),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))

		waitForPath(t, reqs, "/v1/traces")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.Nil(t, b.Shutdown(ctx))
	})

	t.Run("will reject a self-signed collector by default", func(t *testing.T) {
		srv, reqs := startCollector(t, httptest.NewTLSServer)

		var logs syncBuffer
		b, err := New(
			context.Background(),
			Endpoint(srv.URL),
			ProbeDelay(time.Millisecond),
			ShutdownTimeout(200*time.Millisecond),
			Logger(slog.New(slog.NewJSONHandler(&logs, nil))),
		)
		require.Nil(t, err)
		require.Nil(t, b.Start(context.Background()))
		defer b.Shutdown(context.Background())

		require.Eventually(t, func() bool {
			return strings.Contains(logs.String(), "otlp endpoint probe failed")
		}, 5*time.Second, 10*time.Millisecond)
		require.Empty(t, drainPaths(reqs))
	})
}

func TestSignalURL(t *testing.T) {
	testCases := []struct {
		name string
		base string
		want string
	}{
		{name: "no trailing slash", base: "http://localhost:4318", want: "http://localhost:4318/v1/traces"},
		{name: "trailing slash", base: "http://localhost:4318/", want: "http://localhost:4318/v1/traces"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.want, SignalURL(testCase.base, "v1/traces"))
		})
	}
}

func TestGrpcTarget(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
		target   string
		secure   bool
	}{
		{name: "http url", endpoint: "http://collector:4317", target: "collector:4317"},
		{name: "https url", endpoint: "https://collector:4317", target: "collector:4317", secure: true},
		{name: "bare host", endpoint: "collector:4317", target: "collector:4317"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			target, creds := grpcTarget(testCase.endpoint)
			require.Equal(t, testCase.target, target)
			require.Equal(t, testCase.secure, creds.Info().SecurityProtocol != insecure.NewCredentials().Info().SecurityProtocol)
			require.True(t, strings.Contains(testCase.endpoint, target))
		})
	}
}
