// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otlpendpoint derives the base URL used for exporting
// OTLP traces and metrics.
//
// Hosting environments commonly hand a process a single collector
// endpoint for the gRPC transport and expose the HTTP transport on the
// adjacent port. [Resolve] applies that convention when the process is
// configured for http/protobuf and otherwise passes the endpoint through.
package otlpendpoint

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Protocol is an OTLP transport variant as named by OTEL_EXPORTER_OTLP_PROTOCOL.
type Protocol string

const (
	// HTTPProtobuf sends protobuf encoded payloads over HTTP.
	HTTPProtobuf Protocol = "http/protobuf"

	// HTTPJSON sends JSON encoded payloads over HTTP.
	HTTPJSON Protocol = "http/json"

	// GRPC streams payloads over gRPC.
	GRPC Protocol = "grpc"
)

// Known reports whether p is one of the OTLP protocol values.
func (p Protocol) Known() bool {
	switch p {
	case HTTPProtobuf, HTTPJSON, GRPC:
		return true
	default:
		return false
	}
}

// ParseProtocol normalizes s into a Protocol. Unknown values are
// kept as is and treated as a non HTTP transport by [Resolve].
func ParseProtocol(s string) Protocol {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return HTTPProtobuf
	}
	return Protocol(s)
}

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (p *Protocol) UnmarshalText(b []byte) error {
	*p = ParseProtocol(string(b))
	return nil
}

const (
	// DefaultFallback is returned when no primary endpoint is configured.
	DefaultFallback = "http://localhost:4318"

	// DefaultPortOffset is the distance between the gRPC
	// and HTTP ports of a collector.
	DefaultPortOffset = 1
)

type options struct {
	portOffset int
	fallback   string
	log        *slog.Logger
}

// Option configures [Resolve].
type Option func(*options)

// PortOffset overrides the number added to the primary endpoint's
// port when deriving the HTTP endpoint.
func PortOffset(n int) Option {
	return func(o *options) {
		o.portOffset = n
	}
}

// Fallback overrides the endpoint returned when no primary endpoint is set.
func Fallback(endpoint string) Option {
	return func(o *options) {
		o.fallback = endpoint
	}
}

// Logger sets the logger used to report an unset primary endpoint
// or an unknown protocol.
func Logger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Resolve returns the base URL for OTLP export traffic.
//
// An empty primary yields the fallback endpoint. For [HTTPProtobuf],
// a primary with a numeric port is returned with its port shifted by
// the port offset and any trailing slash removed. Every other case,
// including unparseable URLs, returns primary unchanged.
func Resolve(primary string, protocol Protocol, opts ...Option) string {
	o := &options{
		portOffset: DefaultPortOffset,
		fallback:   DefaultFallback,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	if primary == "" {
		o.log.WarnContext(
			context.Background(),
			"OTLP endpoint not set, using fallback endpoint",
			slog.String("otel_endpoint", o.fallback),
		)
		return o.fallback
	}

	if !protocol.Known() {
		o.log.WarnContext(
			context.Background(),
			"unknown OTLP protocol, exporting to the endpoint unchanged",
			slog.String("otel_protocol", string(protocol)),
			slog.String("otel_endpoint", primary),
		)
	}
	if protocol != HTTPProtobuf {
		return primary
	}

	shifted, ok := shiftPort(primary, o.portOffset)
	if !ok {
		return primary
	}
	return shifted
}

func shiftPort(primary string, offset int) (string, bool) {
	u, err := url.Parse(primary)
	if err != nil || u.Host == "" {
		return "", false
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port == 0 {
		return "", false
	}

	port += offset
	if port <= 0 || port > 65535 {
		return "", false
	}

	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	return strings.TrimSuffix(u.String(), "/"), true
}
