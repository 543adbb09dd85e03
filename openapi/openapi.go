// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package openapi serves procedures on their REST routes together with
// an OpenAPI 3 document and an API reference page.
package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
	"github.com/z5labs/weather/dispatch"
	"github.com/z5labs/weather/procedure"
	"gopkg.in/yaml.v3"
)

// ErrorBody is the JSON shape of a failed REST call.
type ErrorBody struct {
	Defined bool   `json:"defined"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Option
type Option func(*Handler)

// Title sets the document title.
func Title(title string) Option {
	return func(h *Handler) {
		h.title = title
	}
}

// Version sets the document version.
func Version(version string) Option {
	return func(h *Handler) {
		h.version = version
	}
}

// Logger
func Logger(log *slog.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// Handler implements [dispatch.Handler].
type Handler struct {
	router  *procedure.Router
	title   string
	version string
	log     *slog.Logger

	specOnce sync.Once
	specJSON []byte
	specYAML []byte
	specErr  error
}

// NewHandler returns a Handler for every procedure in router.
func NewHandler(router *procedure.Router, opts ...Option) *Handler {
	h := &Handler{
		router:  router,
		title:   "API",
		version: "1.0.0",
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements the [dispatch.Handler] interface.
func (h *Handler) Handle(r *http.Request, opts dispatch.Options) dispatch.Result {
	rest, ok := strings.CutPrefix(r.URL.Path, opts.Prefix)
	if !ok {
		return dispatch.NotMatched
	}
	if rest != "" && !strings.HasPrefix(rest, "/") {
		return dispatch.NotMatched
	}

	if r.Method == http.MethodGet {
		switch rest {
		case "", "/":
			return dispatch.Matched(h.reference(opts.Prefix))
		case "/spec.json":
			return dispatch.Matched(h.spec("application/json", func() []byte { return h.specJSON }))
		case "/spec.yaml":
			return dispatch.Matched(h.spec("application/yaml", func() []byte { return h.specYAML }))
		}
	}

	for _, p := range h.router.Procedures() {
		rt := p.Route()
		if rt.Method != r.Method || rt.Path != rest {
			continue
		}

		ctx := r.Context()
		if opts.Context != nil {
			ctx = dispatch.WithContext(ctx, opts.Context)
		}

		out, err := h.router.Invoke(ctx, p, decoder(r))
		if err != nil {
			perr := procedure.AsError(err)
			return dispatch.Matched(h.encode(perr.Status, ErrorBody{
				Code:    perr.Code,
				Status:  perr.Status,
				Message: perr.Message,
			}))
		}
		return dispatch.Matched(h.encode(http.StatusOK, out))
	}
	return dispatch.NotMatched
}

func decoder(r *http.Request) procedure.Decoder {
	return func(v any) error {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			q := r.URL.Query()
			if len(q) == 0 {
				return nil
			}
			params := make(map[string]string, len(q))
			for k := range q {
				params[k] = q.Get(k)
			}
			b, err := json.Marshal(params)
			if err != nil {
				return err
			}
			return json.Unmarshal(b, v)
		}

		if r.Body == nil {
			return nil
		}
		defer r.Body.Close()

		b, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(b)) == 0 {
			return nil
		}
		return json.Unmarshal(b, v)
	}
}

func (h *Handler) encode(status int, v any) *dispatch.Response {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
		status = http.StatusInternalServerError
		b, _ = json.Marshal(ErrorBody{
			Code:    procedure.CodeFor(status),
			Status:  status,
			Message: "Internal server error",
		})
	}
	return &dispatch.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       b,
	}
}

func (h *Handler) spec(contentType string, body func() []byte) *dispatch.Response {
	h.specOnce.Do(h.buildSpec)
	if h.specErr != nil {
		h.log.Error("failed to build openapi document", slog.Any("error", h.specErr))
		return h.encode(http.StatusInternalServerError, ErrorBody{
			Code:    procedure.CodeFor(http.StatusInternalServerError),
			Status:  http.StatusInternalServerError,
			Message: "Internal server error",
		})
	}
	return &dispatch.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       body(),
	}
}

func (h *Handler) buildSpec() {
	spec, err := Document(h.router, h.title, h.version)
	if err != nil {
		h.specErr = err
		return
	}

	h.specJSON, err = json.Marshal(spec)
	if err != nil {
		h.specErr = err
		return
	}

	var m map[string]any
	err = json.Unmarshal(h.specJSON, &m)
	if err != nil {
		h.specErr = err
		return
	}
	h.specYAML, h.specErr = yaml.Marshal(m)
}

// OperationError
type OperationError struct {
	Path  string
	Cause error
}

// Error implements the [error] interface.
func (e OperationError) Error() string {
	return fmt.Sprintf("failed to document procedure %s: %s", e.Path, e.Cause)
}

// Unwrap
func (e OperationError) Unwrap() error {
	return e.Cause
}

// Document reflects an OpenAPI 3 document from every procedure in router.
func Document(router *procedure.Router, title, version string) (*openapi3.Spec, error) {
	reflector := openapi3.Reflector{}
	reflector.Spec = &openapi3.Spec{Openapi: "3.0.3"}
	reflector.Spec.Info.
		WithTitle(title).
		WithVersion(version)

	for _, p := range router.Procedures() {
		rt := p.Route()

		oc, err := reflector.NewOperationContext(rt.Method, rt.Path)
		if err != nil {
			return nil, OperationError{Path: p.Path(), Cause: err}
		}
		oc.SetID(operationID(p.Path()))
		if rt.Summary != "" {
			oc.SetSummary(rt.Summary)
		}

		if hasBody(rt.Method) {
			oc.AddReqStructure(p.Input(), func(cu *openapi.ContentUnit) {
				cu.ContentType = "application/json"
			})
		}
		oc.AddRespStructure(p.Output(), func(cu *openapi.ContentUnit) {
			cu.HTTPStatus = http.StatusOK
		})
		oc.AddRespStructure(ErrorBody{}, func(cu *openapi.ContentUnit) {
			cu.IsDefault = true
		})

		err = reflector.AddOperation(oc)
		if err != nil {
			return nil, OperationError{Path: p.Path(), Cause: err}
		}
	}
	return reflector.Spec, nil
}

func operationID(path string) string {
	return strings.ReplaceAll(path, "/", ".")
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

var referencePage = template.Must(template.New("reference").Parse(`<!doctype html>
<html>
  <head>
    <title>{{ .Title }}</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body>
    <script id="api-reference" data-url="{{ .SpecURL }}"></script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
  </body>
</html>
`))

func (h *Handler) reference(prefix string) *dispatch.Response {
	var buf bytes.Buffer
	err := referencePage.Execute(&buf, struct {
		Title   string
		SpecURL string
	}{
		Title:   h.title,
		SpecURL: prefix + "/spec.json",
	})
	if err != nil {
		h.log.Error("failed to render api reference", slog.Any("error", err))
		return &dispatch.Response{StatusCode: http.StatusInternalServerError}
	}
	return &dispatch.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       buf.Bytes(),
	}
}
