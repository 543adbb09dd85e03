// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package rpc serves procedures over a JSON envelope protocol.
//
// A procedure mounted at <prefix>/<path> accepts its input either as
// the data query parameter of a GET request or as the json member of a
// request body. Output is always returned in a json member.
package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/z5labs/weather/dispatch"
	"github.com/z5labs/weather/procedure"
)

type envelope struct {
	JSON json.RawMessage `json:"json"`
}

type errorBody struct {
	Defined bool   `json:"defined"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Option
type Option func(*Handler)

// Logger sets the logger used for encoding failures.
func Logger(log *slog.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// Handler implements [dispatch.Handler] for a [procedure.Router].
type Handler struct {
	router *procedure.Router
	log    *slog.Logger
}

// NewHandler returns a Handler serving every procedure in router.
func NewHandler(router *procedure.Router, opts ...Option) *Handler {
	h := &Handler{
		router: router,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements the [dispatch.Handler] interface.
func (h *Handler) Handle(r *http.Request, opts dispatch.Options) dispatch.Result {
	rest, ok := strings.CutPrefix(r.URL.Path, opts.Prefix)
	if !ok || !strings.HasPrefix(rest, "/") {
		return dispatch.NotMatched
	}

	p, ok := h.router.Lookup(strings.TrimPrefix(rest, "/"))
	if !ok {
		return dispatch.NotMatched
	}

	ctx := r.Context()
	if opts.Context != nil {
		ctx = dispatch.WithContext(ctx, opts.Context)
	}

	out, err := h.router.Invoke(ctx, p, decoder(r))
	if err != nil {
		return dispatch.Matched(h.errorResponse(err))
	}
	return dispatch.Matched(h.encode(http.StatusOK, out))
}

func decoder(r *http.Request) procedure.Decoder {
	return func(v any) error {
		raw, err := rawInput(r)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil
		}
		return json.Unmarshal(raw, v)
	}
}

func rawInput(r *http.Request) (json.RawMessage, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		data := r.URL.Query().Get("data")
		if data == "" {
			return nil, nil
		}
		var env envelope
		err := json.Unmarshal([]byte(data), &env)
		if err != nil {
			return nil, err
		}
		return env.JSON, nil
	}

	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	var env envelope
	err = json.Unmarshal(b, &env)
	if err != nil {
		return nil, err
	}
	return env.JSON, nil
}

func (h *Handler) errorResponse(err error) *dispatch.Response {
	perr := procedure.AsError(err)
	return h.encode(perr.Status, errorBody{
		Defined: false,
		Code:    perr.Code,
		Status:  perr.Status,
		Message: perr.Message,
	})
}

func (h *Handler) encode(status int, v any) *dispatch.Response {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode rpc response", slog.Any("error", err))
		status = http.StatusInternalServerError
		b, _ = json.Marshal(errorBody{
			Code:    procedure.CodeFor(status),
			Status:  status,
			Message: "Internal server error",
		})
	}

	body, _ := json.Marshal(envelope{JSON: b})
	return &dispatch.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       body,
	}
}
