// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/rs/cors"
)

// Middleware wraps a [http.Handler].
type Middleware func(http.Handler) http.Handler

// CORSMethods are the methods advertised to cross origin callers.
var CORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}

// CORS allows cross origin requests from origin, a comma separated list
// of origins. An empty origin allows any origin.
func CORS(origin string) Middleware {
	allowed := []string{"*"}
	if origins := splitOrigins(origin); len(origins) > 0 {
		allowed = origins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: CORSMethods,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
	})
	return c.Handler
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LogRequests logs the method, path, status and latency of every request.
func LogRequests(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)

			log.InfoContext(
				r.Context(),
				"handled request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", m.Code),
				slog.Int64("bytes_written", m.Written),
				slog.Duration("latency", m.Duration),
			)
		})
	}
}
