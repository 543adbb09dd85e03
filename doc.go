// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package weather documents the layout of the weather API server.
//
// The binary lives in cmd/weather-api. Its app package layers config
// sources, decodes them into a typed config struct and composes the
// server from the subpackages:
//
//   - app: panic recovery, signal handling and lifecycle hooks
//   - config: YAML defaults, template overrides and environment overlays
//   - logging: JSON structured logs carrying the active trace ids
//   - dispatch: offers each request to an ordered list of protocol
//     handlers before falling through to the application routes
//   - rpc and openapi: the protocol handlers mounted on /rpc and /api-reference
//   - forecast: the application routes
//   - otlpendpoint and telemetry: resolve the collector endpoint and own
//     the trace and metric exporters
//   - instrument: span helpers used by the application routes
package weather
