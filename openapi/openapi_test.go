// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swaggest/openapi-go/openapi3"
	"github.com/z5labs/weather/dispatch"
	"github.com/z5labs/weather/procedure"
	"gopkg.in/yaml.v3"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type search struct {
	Name string `json:"name"`
}

func newRouter() *procedure.Router {
	return procedure.NewRouter(procedure.Register(
		procedure.New("healthCheck", procedure.Route{Method: http.MethodGet, Path: "/healthCheck", Summary: "Health check"}, func(context.Context, struct{}) (string, error) {
			return "OK", nil
		}),
		procedure.New("items/find", procedure.Route{Method: http.MethodGet, Path: "/items"}, func(_ context.Context, s search) ([]item, error) {
			if s.Name == "" {
				return nil, procedure.NewError(http.StatusBadRequest, "name is required")
			}
			return []item{{Name: s.Name, Count: 1}}, nil
		}),
		procedure.New("items/create", procedure.Route{Method: http.MethodPost, Path: "/items"}, func(_ context.Context, i item) (item, error) {
			i.Count++
			return i, nil
		}),
	))
}

func handle(t *testing.T, h *Handler, method, target, body string) dispatch.Result {
	t.Helper()

	r := httptest.NewRequest(method, target, strings.NewReader(body))
	return h.Handle(r, dispatch.Options{Prefix: "/api-reference", Context: dispatch.NewContext(r)})
}

func TestHandler_Handle(t *testing.T) {
	testCases := []struct {
		name        string
		method      string
		target      string
		body        string
		matched     bool
		status      int
		contentType string
		resp        string
	}{
		{
			name:        "get procedure",
			method:      http.MethodGet,
			target:      "/api-reference/healthCheck",
			matched:     true,
			status:      http.StatusOK,
			contentType: "application/json",
			resp:        `"OK"`,
		},
		{
			name:        "get procedure with query input",
			method:      http.MethodGet,
			target:      "/api-reference/items?name=bolt",
			matched:     true,
			status:      http.StatusOK,
			contentType: "application/json",
			resp:        `[{"name":"bolt","count":1}]`,
		},
		{
			name:        "post procedure with body",
			method:      http.MethodPost,
			target:      "/api-reference/items",
			body:        `{"name":"nut","count":2}`,
			matched:     true,
			status:      http.StatusOK,
			contentType: "application/json",
			resp:        `{"name":"nut","count":3}`,
		},
		{
			name:        "procedure error",
			method:      http.MethodGet,
			target:      "/api-reference/items",
			matched:     true,
			status:      http.StatusBadRequest,
			contentType: "application/json",
			resp:        `{"defined":false,"code":"BAD_REQUEST","status":400,"message":"name is required"}`,
		},
		{
			name:   "wrong method",
			method: http.MethodDelete,
			target: "/api-reference/items",
		},
		{
			name:   "unknown path",
			method: http.MethodGet,
			target: "/api-reference/nope",
		},
		{
			name:   "other prefix",
			method: http.MethodGet,
			target: "/rpc/healthCheck",
		},
		{
			name:   "prefix without separator",
			method: http.MethodGet,
			target: "/api-referencehealthCheck",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			res := handle(t, NewHandler(newRouter()), testCase.method, testCase.target, testCase.body)

			require.Equal(t, testCase.matched, res.Matched)
			if !testCase.matched {
				return
			}
			require.Equal(t, testCase.status, res.Response.StatusCode)
			require.Equal(t, testCase.contentType, res.Response.Header.Get("Content-Type"))
			require.JSONEq(t, testCase.resp, string(res.Response.Body))
		})
	}
}

func TestHandler_Handle_Spec(t *testing.T) {
	t.Run("will serve the document as json", func(t *testing.T) {
		h := NewHandler(newRouter(), Title("Weather"), Version("0.1.0"))

		res := handle(t, h, http.MethodGet, "/api-reference/spec.json", "")
		require.True(t, res.Matched)
		require.Equal(t, http.StatusOK, res.Response.StatusCode)
		require.Equal(t, "application/json", res.Response.Header.Get("Content-Type"))

		var spec openapi3.Spec
		err := json.Unmarshal(res.Response.Body, &spec)
		require.Nil(t, err)
		require.Equal(t, "Weather", spec.Info.Title)
		require.Equal(t, "0.1.0", spec.Info.Version)
		require.Contains(t, spec.Paths.MapOfPathItemValues, "/healthCheck")
		require.Contains(t, spec.Paths.MapOfPathItemValues, "/items")

		items := spec.Paths.MapOfPathItemValues["/items"]
		require.Contains(t, items.MapOfOperationValues, "get")
		require.Contains(t, items.MapOfOperationValues, "post")

		post := items.MapOfOperationValues["post"]
		require.NotNil(t, post.RequestBody)
		require.NotNil(t, post.ID)
		require.Equal(t, "items.create", *post.ID)
	})

	t.Run("will serve the document as yaml", func(t *testing.T) {
		h := NewHandler(newRouter())

		res := handle(t, h, http.MethodGet, "/api-reference/spec.yaml", "")
		require.True(t, res.Matched)
		require.Equal(t, "application/yaml", res.Response.Header.Get("Content-Type"))

		var doc map[string]any
		err := yaml.Unmarshal(res.Response.Body, &doc)
		require.Nil(t, err)
		require.Equal(t, "3.0.3", doc["openapi"])
		require.Contains(t, doc["paths"], "/healthCheck")
	})
}

func TestHandler_Handle_Reference(t *testing.T) {
	testCases := []struct {
		name   string
		target string
	}{
		{name: "bare prefix", target: "/api-reference"},
		{name: "trailing slash", target: "/api-reference/"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			res := handle(t, NewHandler(newRouter()), http.MethodGet, testCase.target, "")

			require.True(t, res.Matched)
			require.Equal(t, http.StatusOK, res.Response.StatusCode)
			require.Equal(t, "text/html; charset=utf-8", res.Response.Header.Get("Content-Type"))
			require.Contains(t, string(res.Response.Body), `data-url="/api-reference/spec.json"`)
		})
	}
}
