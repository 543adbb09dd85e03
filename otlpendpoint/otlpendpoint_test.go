// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otlpendpoint

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	testCases := []struct {
		name     string
		primary  string
		protocol Protocol
		opts     []Option
		expected string
	}{
		{
			name:     "empty primary returns the fallback",
			primary:  "",
			protocol: HTTPProtobuf,
			expected: "http://localhost:4318",
		},
		{
			name:     "empty primary returns a custom fallback",
			primary:  "",
			protocol: GRPC,
			opts:     []Option{Fallback("http://collector:4318")},
			expected: "http://collector:4318",
		},
		{
			name:     "http/protobuf increments a numeric port",
			primary:  "http://host:4317",
			protocol: HTTPProtobuf,
			expected: "http://host:4318",
		},
		{
			name:     "http/protobuf strips the trailing slash",
			primary:  "https://localhost:21050/",
			protocol: HTTPProtobuf,
			expected: "https://localhost:21051",
		},
		{
			name:     "http/protobuf keeps the path",
			primary:  "http://host:4317/otlp/",
			protocol: HTTPProtobuf,
			expected: "http://host:4318/otlp",
		},
		{
			name:     "http/protobuf supports ipv6 hosts",
			primary:  "http://[::1]:4317",
			protocol: HTTPProtobuf,
			expected: "http://[::1]:4318",
		},
		{
			name:     "http/protobuf honours a custom port offset",
			primary:  "http://host:4317",
			protocol: HTTPProtobuf,
			opts:     []Option{PortOffset(2)},
			expected: "http://host:4319",
		},
		{
			name:     "http/protobuf without a port is unchanged",
			primary:  "http://host/",
			protocol: HTTPProtobuf,
			expected: "http://host/",
		},
		{
			name:     "http/protobuf with a zero port is unchanged",
			primary:  "http://host:0",
			protocol: HTTPProtobuf,
			expected: "http://host:0",
		},
		{
			name:     "http/protobuf with an overflowing port is unchanged",
			primary:  "http://host:65535",
			protocol: HTTPProtobuf,
			expected: "http://host:65535",
		},
		{
			name:     "malformed url is unchanged",
			primary:  "http://host:abc",
			protocol: HTTPProtobuf,
			expected: "http://host:abc",
		},
		{
			name:     "schemeless address is unchanged",
			primary:  "localhost:4317",
			protocol: HTTPProtobuf,
			expected: "localhost:4317",
		},
		{
			name:     "grpc is unchanged",
			primary:  "http://host:4317",
			protocol: GRPC,
			expected: "http://host:4317",
		},
		{
			name:     "http/json is unchanged",
			primary:  "http://host:4317",
			protocol: HTTPJSON,
			expected: "http://host:4317",
		},
		{
			name:     "unknown protocol is unchanged",
			primary:  "http://host:4317",
			protocol: Protocol("carrier-pigeon"),
			expected: "http://host:4317",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				got := Resolve(tc.primary, tc.protocol, tc.opts...)
				require.Equal(t, tc.expected, got)
			})
		})
	}
}

func TestResolve_WarnsOnFallback(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	got := Resolve("", HTTPProtobuf, Logger(log))
	require.Equal(t, DefaultFallback, got)
	require.Contains(t, buf.String(), `"level":"WARN"`)
	require.Contains(t, buf.String(), DefaultFallback)
}

func TestResolve_WarnsOnUnknownProtocol(t *testing.T) {
	testCases := []struct {
		name     string
		protocol Protocol
		warned   bool
	}{
		{name: "http/protobuf", protocol: HTTPProtobuf},
		{name: "http/json", protocol: HTTPJSON},
		{name: "grpc", protocol: GRPC},
		{name: "unknown", protocol: Protocol("carrier-pigeon"), warned: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))

			Resolve("http://host:4317", tc.protocol, Logger(log))
			require.Equal(t, tc.warned, strings.Contains(buf.String(), "unknown OTLP protocol"))
		})
	}
}

func TestParseProtocol(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected Protocol
	}{
		{name: "empty defaults to http/protobuf", input: "", expected: HTTPProtobuf},
		{name: "http/protobuf", input: "http/protobuf", expected: HTTPProtobuf},
		{name: "grpc is case insensitive", input: " GRPC ", expected: GRPC},
		{name: "http/json", input: "http/json", expected: HTTPJSON},
		{name: "unknown values are kept", input: "carrier-pigeon", expected: Protocol("carrier-pigeon")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ParseProtocol(tc.input))

			var p Protocol
			require.NoError(t, p.UnmarshalText([]byte(tc.input)))
			require.Equal(t, tc.expected, p)
		})
	}
}
