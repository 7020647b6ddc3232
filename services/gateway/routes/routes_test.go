// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/dispatch"
	"github.com/AleutianAI/AleutianGateway/services/gateway/middleware"
	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
	"github.com/AleutianAI/AleutianGateway/services/gateway/stream"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

type readyDaemon struct{}

func (readyDaemon) EnsureRunning(context.Context, datatypes.GatewayConfig) bool { return true }

// newMockOllamaServer answers /api/chat and /api/tags like a local daemon.
func newMockOllamaServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": reply},
			})
		case "/api/tags":
			_, _ = io.WriteString(w, `{"models":[{"name":"llama3"},{"name":"qwen3:8b"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type gateway struct {
	router *gin.Engine
	hub    *stream.Hub
	reg    *prometheus.Registry
}

func newGateway(t *testing.T, daemonURL string, auth middleware.AuthProvider) *gateway {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewGatewayMetrics(reg)
	defaults := datatypes.GatewayConfig{Provider: datatypes.ProviderOllama, BaseURL: daemonURL}
	d := dispatch.New(
		dispatch.WithDefaults(func() datatypes.GatewayConfig { return defaults }),
		dispatch.WithMetrics(metrics),
	)
	hub := stream.NewHub(d, stream.WithMetrics(metrics))
	t.Cleanup(hub.Close)

	router := gin.New()
	SetupRoutes(router, Deps{
		Chat:     d,
		Streams:  hub,
		Daemon:   readyDaemon{},
		Resolve:  d.Resolve,
		Gatherer: reg,
		Auth:     auth,
	})
	return &gateway{router: router, hub: hub, reg: reg}
}

func (g *gateway) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersSurface(t *testing.T) {
	g := newGateway(t, "http://127.0.0.1:11434", nil)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/chat"},
		{"POST", "/v1/chat/stream"},
		{"POST", "/v1/daemon/ensure"},
		{"POST", "/v1/models/list"},
		{"POST", "/v1/models/exists"},
		{"POST", "/v1/models/pull"},
		{"GET", "/v1/streams/:id/events"},
		{"GET", "/v1/streams/:id/ws"},
		{"DELETE", "/v1/streams/:id"},
	}

	routes := g.router.Routes()
	for _, e := range expected {
		found := false
		for _, r := range routes {
			if r.Method == e.method && r.Path == e.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", e.method, e.path)
	}
}

func TestSetupRoutes_HealthAndMetrics(t *testing.T) {
	g := newGateway(t, "http://127.0.0.1:11434", nil)

	w := g.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = g.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aleutian_gateway_")
}

func TestSetupRoutes_AuthGuardsV1Only(t *testing.T) {
	g := newGateway(t, "http://127.0.0.1:11434", middleware.NewTokenProvider("s3cret"))

	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, g.do(http.MethodPost, "/v1/daemon/ensure", `{}`).Code)

	w := g.do(http.MethodPost, "/v1/daemon/ensure", `{}`, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ready":true}`, w.Body.String())
}

func TestSetupRoutes_DirectChatUsesDefaults(t *testing.T) {
	daemon := newMockOllamaServer(t, "Hello from llama")
	g := newGateway(t, daemon.URL, nil)

	w := g.do(http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hi"}],"model":"llama3"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"content":"Hello from llama"}`, w.Body.String())
}

func TestSetupRoutes_ModelsList(t *testing.T) {
	daemon := newMockOllamaServer(t, "")
	g := newGateway(t, daemon.URL, nil)

	w := g.do(http.MethodPost, "/v1/models/list", `{}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `["llama3","qwen3:8b"]`, w.Body.String())

	w = g.do(http.MethodPost, "/v1/models/exists", `{"config":{},"model":"qwen3:8b"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"exists":true}`, w.Body.String())
}

func TestSetupRoutes_StreamedChatEndToEnd(t *testing.T) {
	daemon := newMockOllamaServer(t, "The quick brown fox")
	g := newGateway(t, daemon.URL, nil)

	w := g.do(http.MethodPost, "/v1/chat/stream", `{"messages":[{"role":"user","content":"hi"}],"model":"llama3"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var started struct {
		StreamID string `json:"stream_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.True(t, strings.HasPrefix(started.StreamID, "stream-"))

	w = g.do(http.MethodGet, "/v1/streams/"+started.StreamID+"/events", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Equal(t, 3, strings.Count(body, "event: chunk\n"))
	assert.Equal(t, 1, strings.Count(body, "event: end\n"))
	assert.NotContains(t, body, "event: error")
	assert.Less(t, strings.LastIndex(body, "event: chunk"), strings.Index(body, "event: end"))

	assert.Equal(t, http.StatusNotFound, g.do(http.MethodGet, "/v1/streams/stream-unknown/events", "").Code)
}
