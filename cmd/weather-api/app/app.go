// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app wires the weather API together from its config.
package app

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/z5labs/weather/app"
	"github.com/z5labs/weather/config"
	"github.com/z5labs/weather/dispatch"
	"github.com/z5labs/weather/forecast"
	"github.com/z5labs/weather/health"
	"github.com/z5labs/weather/httpclient"
	"github.com/z5labs/weather/logging"
	"github.com/z5labs/weather/openapi"
	"github.com/z5labs/weather/otlpendpoint"
	"github.com/z5labs/weather/procedure"
	"github.com/z5labs/weather/rpc"
	"github.com/z5labs/weather/server"
	"github.com/z5labs/weather/telemetry"
)

// DefaultConfig holds the YAML defaults which every other source overrides.
//
//go:embed config.yaml
var DefaultConfig []byte

// EnvBindings maps environment variables onto config keys.
var EnvBindings = map[string]string{
	"LOG_LEVEL":                               "logging.level",
	"PORT":                                    "http.port",
	"CORS_ORIGIN":                             "http.corsOrigin",
	"OTEL_EXPORTER_OTLP_ENDPOINT":             "otel.endpoint",
	"OTEL_EXPORTER_OTLP_PROTOCOL":             "otel.protocol",
	"OTEL_SERVICE_NAME":                       "otel.serviceName",
	"OTEL_PORT_OFFSET":                        "otel.portOffset",
	"OTEL_EXPORTER_OTLP_INSECURE_SKIP_VERIFY": "otel.insecureSkipVerify",
	"OTEL_MIRROR_GRPC_ENDPOINT":               "otel.mirror.grpcEndpoint",
	"OTEL_MIRROR_CONSOLE":                     "otel.mirror.console",
	"FORECAST_UPSTREAM_URL":                   "forecast.upstream",
	"FORECAST_UPSTREAM_RETRIES":               "forecast.retry.max",
}

// Sources layers the defaults, an optional override template and the
// environment, in increasing order of precedence. The override may
// reference variables with {{ env "NAME" | default "value" }}.
func Sources(lookup config.LookupFunc, override []byte) []config.Source {
	srcs := []config.Source{config.Yaml(DefaultConfig)}
	if len(override) > 0 {
		getenv := func(name string) string {
			v, _ := lookup(name)
			return v
		}
		srcs = append(srcs, config.FromTemplate(override, config.EnvFuncs(getenv)))
	}
	return append(srcs, config.FromEnv(lookup, EnvBindings))
}

// ConfigError
type ConfigError struct {
	Cause error
}

// Error implements the [error] interface.
func (e ConfigError) Error() string {
	return fmt.Sprintf("failed to load config: %s", e.Cause)
}

// Unwrap
func (e ConfigError) Unwrap() error {
	return e.Cause
}

// BuildError
type BuildError struct {
	Cause error
}

// Error implements the [error] interface.
func (e BuildError) Error() string {
	return fmt.Sprintf("failed to build weather api: %s", e.Cause)
}

// Unwrap
func (e BuildError) Unwrap() error {
	return e.Cause
}

// Run loads the config from srcs, builds the weather API and serves it
// until a termination signal is received.
func Run(ctx context.Context, srcs ...config.Source) error {
	cfg, err := config.Load[Config](srcs...)
	if err != nil {
		return ConfigError{Cause: err}
	}

	a, err := Init(ctx, cfg)
	if err != nil {
		return BuildError{Cause: err}
	}
	return a.Run(ctx)
}

const (
	RPCPrefix          = "/rpc"
	APIReferencePrefix = "/api-reference"
)

// Config
type Config struct {
	Logging struct {
		Level slog.Level `config:"level"`
	} `config:"logging"`

	HTTP struct {
		Port            uint          `config:"port"`
		CORSOrigin      string        `config:"corsOrigin"`
		ShutdownTimeout time.Duration `config:"shutdownTimeout"`
	} `config:"http"`

	OTel struct {
		Endpoint           string                `config:"endpoint"`
		Protocol           otlpendpoint.Protocol `config:"protocol"`
		ServiceName        string                `config:"serviceName"`
		PortOffset         int                   `config:"portOffset"`
		InsecureSkipVerify bool                  `config:"insecureSkipVerify"`
		ExportInterval     time.Duration         `config:"exportInterval"`
		ProbeDelay         time.Duration         `config:"probeDelay"`
		ShutdownTimeout    time.Duration         `config:"shutdownTimeout"`

		Mirror struct {
			GRPCEndpoint string `config:"grpcEndpoint"`
			Console      bool   `config:"console"`
		} `config:"mirror"`
	} `config:"otel"`

	Forecast struct {
		Upstream string        `config:"upstream"`
		Timeout  time.Duration `config:"timeout"`

		Retry struct {
			Max     int           `config:"max"`
			WaitMin time.Duration `config:"waitMin"`
			WaitMax time.Duration `config:"waitMax"`
		} `config:"retry"`

		Circuit struct {
			TripAfter          uint32        `config:"tripAfter"`
			TripOn             []int         `config:"tripOn"`
			OpenTimeout        time.Duration `config:"openTimeout"`
			HalfOpenRequests   uint32        `config:"halfOpenRequests"`
			CountResetInterval time.Duration `config:"countResetInterval"`
		} `config:"circuit"`
	} `config:"forecast"`
}

// Init builds the weather API from cfg.
func Init(ctx context.Context, cfg Config) (app.App, error) {
	logger := logging.New(
		os.Stdout,
		logging.Level(cfg.Logging.Level),
		logging.Service(cfg.OTel.ServiceName),
	)
	slog.SetDefault(logger)

	endpoint := otlpendpoint.Resolve(
		cfg.OTel.Endpoint,
		cfg.OTel.Protocol,
		otlpendpoint.PortOffset(cfg.OTel.PortOffset),
		otlpendpoint.Logger(logger),
	)

	bundle, err := telemetry.New(ctx, telemetryOptions(cfg, endpoint, logger)...)
	if err != nil {
		return nil, err
	}

	readiness := new(health.Binary)
	readiness.Set(false)

	circuit := cfg.Forecast.Circuit
	client := httpclient.New(
		httpclient.Name("forecast-upstream"),
		httpclient.Timeout(cfg.Forecast.Timeout),
		httpclient.TracerProvider(bundle.TracerProvider()),
		httpclient.Logger(logger),
		httpclient.Retry(cfg.Forecast.Retry.Max, cfg.Forecast.Retry.WaitMin, cfg.Forecast.Retry.WaitMax),
		httpclient.TripAfter(circuit.TripAfter),
		httpclient.TripOn(circuit.TripOn...),
		httpclient.OpenStateTimeout(circuit.OpenTimeout),
		httpclient.HalfOpenRequests(circuit.HalfOpenRequests),
		httpclient.CountResetInterval(circuit.CountResetInterval),
	)

	svc, err := forecast.New(
		forecast.TracerProvider(bundle.TracerProvider()),
		forecast.MeterProvider(bundle.MeterProvider()),
		forecast.HTTPClient(client),
		forecast.Upstream(cfg.Forecast.Upstream),
		forecast.Logger(logger),
		forecast.Health(readiness),
	)
	if err != nil {
		_ = bundle.Shutdown(ctx)
		return nil, err
	}

	rt := server.New(
		server.ListenOnPort(cfg.HTTP.Port),
		server.Handler(NewHandler(svc, logger)),
		server.Logger(logger),
		server.Readiness(readiness),
		server.CORSOrigin(cfg.HTTP.CORSOrigin),
		server.ShutdownTimeout(cfg.HTTP.ShutdownTimeout),
	)

	return app.WithLifecycle(
		app.WithSignalNotifications(app.Recover(rt), syscall.SIGTERM, os.Interrupt),
		app.Lifecycle{
			PreRun:  bundle.Start,
			PostRun: bundle.Shutdown,
		},
	), nil
}

func telemetryOptions(cfg Config, endpoint string, logger *slog.Logger) []telemetry.Option {
	opts := []telemetry.Option{
		telemetry.ServiceName(cfg.OTel.ServiceName),
		telemetry.Endpoint(endpoint),
		telemetry.InsecureSkipVerify(cfg.OTel.InsecureSkipVerify),
		telemetry.ExportInterval(cfg.OTel.ExportInterval),
		telemetry.ProbeDelay(cfg.OTel.ProbeDelay),
		telemetry.ShutdownTimeout(cfg.OTel.ShutdownTimeout),
		telemetry.Logger(logger),
	}
	if cfg.OTel.Mirror.GRPCEndpoint != "" {
		opts = append(opts, telemetry.MirrorGRPC(cfg.OTel.Mirror.GRPCEndpoint))
	}
	if cfg.OTel.Mirror.Console {
		opts = append(opts, telemetry.MirrorConsole(os.Stdout))
	}
	return opts
}

// NewHandler offers each request to the rpc handler, then the openapi
// handler, and finally the application routes.
func NewHandler(svc *forecast.Service, logger *slog.Logger) http.Handler {
	router := procedure.NewRouter(
		procedure.Intercept(procedure.OnError(func(ctx context.Context, err error) {
			attrs := []any{slog.Any("error", err)}
			if dc, ok := dispatch.FromContext(ctx); ok {
				attrs = append(attrs, slog.String("request_id", dc.RequestID))
			}
			logger.ErrorContext(ctx, "procedure failed", attrs...)
		})),
		procedure.Register(svc.Procedures()...),
	)

	return dispatch.New(
		svc.Handler(),
		dispatch.Route(RPCPrefix, rpc.NewHandler(router, rpc.Logger(logger))),
		dispatch.Route(APIReferencePrefix, openapi.NewHandler(
			router,
			openapi.Title("Weather API"),
			openapi.Version("1.0.0"),
			openapi.Logger(logger),
		)),
	)
}
