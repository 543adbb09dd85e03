// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/z5labs/weather/httpclient"

	"go.opentelemetry.io/otel/trace/noop"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"
)

// newProbeClient builds an untraced client so the probe never
// produces spans of its own.
func newProbeClient(o options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg := o.tlsConfig(); cfg != nil {
		transport.TLSClientConfig = cfg
	}

	return httpclient.New(
		httpclient.Name("otlp-probe"),
		httpclient.Timeout(DefaultProbeTimeout),
		httpclient.RoundTripper(transport),
		httpclient.TracerProvider(noop.NewTracerProvider()),
		httpclient.Logger(o.log),
	)
}

// probe sends one empty trace export to the endpoint and logs the
// outcome. It never affects startup or the export pipeline.
func (b *Bundle) probe(ctx context.Context) {
	defer close(b.probeDone)

	timer := time.NewTimer(b.opts.probeDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	target := SignalURL(b.opts.endpoint, "v1/traces")
	log := b.opts.log.With(slog.String("url", target))

	body, err := proto.Marshal(&coltracepb.ExportTraceServiceRequest{})
	if err != nil {
		log.WarnContext(ctx, "failed to encode otlp probe", slog.Any("error", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		log.WarnContext(ctx, "failed to create otlp probe request", slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := b.opts.probeClient.Do(req)
	if err != nil {
		log.WarnContext(ctx, "otlp endpoint probe failed", slog.Any("error", err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	log.InfoContext(ctx, "otlp endpoint probe completed", slog.Int("status_code", resp.StatusCode))
}
