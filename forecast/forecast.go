// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package forecast implements the weather application routes and procedures.
package forecast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/z5labs/weather/health"
	"github.com/z5labs/weather/instrument"
	"github.com/z5labs/weather/mux"
	"github.com/z5labs/weather/procedure"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName scopes the tracer and meter.
	InstrumentationName = "weather-api"

	// Endpoint is the REST route of the forecast.
	Endpoint = "/api/weatherforecast"

	// DefaultUpstream is fetched on every forecast request.
	DefaultUpstream = "http://example.com"
)

// Forecast is a single day's weather.
type Forecast struct {
	Date         string `json:"date"`
	TemperatureC int    `json:"temperatureC"`
	TemperatureF int    `json:"temperatureF"`
	Summary      string `json:"summary"`
}

// Forecasts returns the fixed five day forecast.
func Forecasts() []Forecast {
	return []Forecast{
		{Date: "2024-01-01", TemperatureC: 25, TemperatureF: 77, Summary: "Sunny"},
		{Date: "2024-01-02", TemperatureC: 20, TemperatureF: 68, Summary: "Cloudy"},
		{Date: "2024-01-03", TemperatureC: 22, TemperatureF: 72, Summary: "Partly Cloudy"},
		{Date: "2024-01-04", TemperatureC: 18, TemperatureF: 64, Summary: "Rainy"},
		{Date: "2024-01-05", TemperatureC: 28, TemperatureF: 82, Summary: "Hot"},
	}
}

type options struct {
	tp       trace.TracerProvider
	mp       metric.MeterProvider
	client   *http.Client
	upstream string
	log      *slog.Logger
	health   health.Metric
}

// Option configures a [Service].
type Option func(*options)

// TracerProvider defaults to the global provider.
func TracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tp = tp
	}
}

// MeterProvider defaults to the global provider.
func MeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.mp = mp
	}
}

// HTTPClient sets the client used for the upstream fetch.
func HTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// Upstream sets the URL fetched on every forecast request.
func Upstream(url string) Option {
	return func(o *options) {
		o.upstream = url
	}
}

// Logger
func Logger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Health sets the metric reported by the health route.
func Health(m health.Metric) Option {
	return func(o *options) {
		o.health = m
	}
}

// Service serves the weather forecast.
type Service struct {
	tracer   instrument.Tracer
	requests metric.Int64Counter
	client   *http.Client
	upstream string
	log      *slog.Logger
	health   health.Metric
}

// New returns a Service.
func New(opts ...Option) (*Service, error) {
	o := options{
		client:   http.DefaultClient,
		upstream: DefaultUpstream,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		health:   new(health.Binary),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}
	if o.mp == nil {
		o.mp = otel.GetMeterProvider()
	}

	requests, err := o.mp.Meter(InstrumentationName).Int64Counter(
		"api.requests",
		metric.WithDescription("Total number of API requests"),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		tracer:   instrument.NewTracer(o.tp, InstrumentationName),
		requests: requests,
		client:   o.client,
		upstream: o.upstream,
		log:      o.log,
		health:   o.health,
	}, nil
}

// Handler returns the application routes.
func (s *Service) Handler() http.Handler {
	r := mux.New()
	r.Get("/{$}", text("OK"))
	r.Handle(http.MethodGet, "/health", health.Handler(s.health))
	r.Get(Endpoint, s.serveForecast)
	return r
}

// Procedures returns the procedures served over the rpc and openapi handlers.
func (s *Service) Procedures() []procedure.Procedure {
	return []procedure.Procedure{
		procedure.New(
			"healthCheck",
			procedure.Route{Method: http.MethodGet, Path: "/healthCheck", Summary: "Health check"},
			func(ctx context.Context, _ struct{}) (string, error) {
				if !s.health.Healthy(ctx) {
					return "", procedure.NewError(http.StatusServiceUnavailable, "UNAVAILABLE")
				}
				return "OK", nil
			},
		),
		procedure.New(
			"weather/forecast",
			procedure.Route{Method: http.MethodGet, Path: "/weather/forecast", Summary: "Five day weather forecast"},
			func(context.Context, struct{}) ([]Forecast, error) {
				return Forecasts(), nil
			},
		),
	}
}

// Forecast runs the instrumented forecast pipeline.
func (s *Service) Forecast(ctx context.Context) ([]Forecast, error) {
	return instrument.WithSpanValue(ctx, s.tracer, "get-weather-forecast", func(ctx context.Context) ([]Forecast, error) {
		forecasts := Forecasts()

		s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", Endpoint)))

		s.tracer.Capture(
			ctx,
			"fetch-example-com",
			s.fetchUpstream,
			trace.WithAttributes(
				attribute.String("http.method", http.MethodGet),
				attribute.String("http.url", s.upstream),
			),
		)

		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("forecast.count", len(forecasts)),
			attribute.String("endpoint", Endpoint),
		)

		s.log.InfoContext(ctx, "Returning weather forecast data!")
		return forecasts, nil
	})
}

func (s *Service) fetchUpstream(ctx context.Context, span trace.Span) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.upstream, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return nil
}

func (s *Service) serveForecast(w http.ResponseWriter, r *http.Request) {
	forecasts, err := s.Forecast(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to get weather forecast", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(forecasts)
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to write weather forecast", slog.Any("error", err))
	}
}

func text(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		_, _ = io.WriteString(w, body)
	}
}
