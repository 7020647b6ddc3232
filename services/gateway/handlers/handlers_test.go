// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
	"github.com/AleutianAI/AleutianGateway/services/gateway/stream"
	"github.com/AleutianAI/AleutianGateway/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Helpers
// =============================================================================

type fakeChat struct {
	content string
	models  []string
	exists  bool
	err     error
	lastReq datatypes.ChatRequest
	lastCfg datatypes.GatewayConfig
}

func (f *fakeChat) Chat(_ context.Context, req datatypes.ChatRequest) (string, error) {
	f.lastReq = req
	return f.content, f.err
}

func (f *fakeChat) ListModels(_ context.Context, cfg datatypes.GatewayConfig) ([]string, error) {
	f.lastCfg = cfg
	return f.models, f.err
}

func (f *fakeChat) ModelExists(_ context.Context, cfg datatypes.GatewayConfig, _ string) (bool, error) {
	f.lastCfg = cfg
	return f.exists, f.err
}

// hubChatter lets a real stream.Hub back the stream endpoints.
type hubChatter struct {
	reply string
	err   error
	hold  chan struct{}
}

func (h *hubChatter) Prepare(req *datatypes.ChatRequest) error { return req.Validate() }

func (h *hubChatter) Chat(ctx context.Context, _ datatypes.ChatRequest) (string, error) {
	if h.hold != nil {
		select {
		case <-h.hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return h.reply, h.err
}

type fakeDaemon struct {
	ready  bool
	calls  atomic.Int32
	gotCfg datatypes.GatewayConfig
}

func (f *fakeDaemon) EnsureRunning(_ context.Context, cfg datatypes.GatewayConfig) bool {
	f.calls.Add(1)
	f.gotCfg = cfg
	return f.ready
}

func defaultsResolver(cfg datatypes.GatewayConfig) datatypes.GatewayConfig {
	return cfg.Merge(datatypes.GatewayConfig{
		Provider: datatypes.ProviderOllama,
		BaseURL:  "http://127.0.0.1:11434/",
	})
}

func postJSON(t *testing.T, h gin.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.POST(path, h)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const chatBody = `{"config":{"provider":"ollama","baseUrl":"http://localhost:11434"},"messages":[{"role":"user","content":"hi"}],"model":"llama3"}`

// sseFrame is one parsed Server-Sent Event.
type sseFrame struct {
	id    string
	event string
	data  string
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.event != "" {
				frames = append(frames, cur)
			}
			cur = sseFrame{}
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return frames
}

func waitDone(t *testing.T, hub *stream.Hub, handle datatypes.StreamHandle) {
	t.Helper()
	sub, err := hub.Subscribe(handle, 0)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		if ev.Type.IsTerminal() {
			return
		}
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

// =============================================================================
// Direct chat
// =============================================================================

func TestHandleDirectChat(t *testing.T) {
	t.Run("success answers content", func(t *testing.T) {
		svc := &fakeChat{content: "Hello!"}
		w := postJSON(t, HandleDirectChat(svc), "/v1/chat", chatBody)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"content":"Hello!"}`, w.Body.String())
		assert.Equal(t, "llama3", svc.lastReq.Model)
		require.Len(t, svc.lastReq.Messages, 1)
		assert.Equal(t, "hi", svc.lastReq.Messages[0].Content)
	})

	t.Run("adapter failure is 502 with the message", func(t *testing.T) {
		svc := &fakeChat{err: &llm.GatewayError{Kind: llm.KindUpstream, Provider: "openai", StatusCode: 500, Message: "boom"}}
		w := postJSON(t, HandleDirectChat(svc), "/v1/chat", chatBody)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "boom", decode(t, w)["error"])
	})

	t.Run("validation failure is 400", func(t *testing.T) {
		svc := &fakeChat{err: errors.New("invalid chat request: messages required")}
		w := postJSON(t, HandleDirectChat(svc), "/v1/chat", chatBody)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode(t, w)["error"], "invalid chat request")
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		w := postJSON(t, HandleDirectChat(&fakeChat{}), "/v1/chat", `{not json`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode(t, w)["error"], "invalid request body")
	})
}

// =============================================================================
// Models
// =============================================================================

func TestHandleListModels(t *testing.T) {
	t.Run("answers a JSON array", func(t *testing.T) {
		svc := &fakeChat{models: []string{"llama3", "qwen3:8b"}}
		w := postJSON(t, HandleListModels(svc), "/v1/models/list", `{"provider":"ollama","baseUrl":"http://localhost:11434"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `["llama3","qwen3:8b"]`, w.Body.String())
		assert.Equal(t, datatypes.ProviderOllama, svc.lastCfg.Provider)
	})

	t.Run("empty list is an empty array", func(t *testing.T) {
		svc := &fakeChat{models: []string{}}
		w := postJSON(t, HandleListModels(svc), "/v1/models/list", `{"provider":"ollama","baseUrl":"http://localhost:11434"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("unreachable backend is 502", func(t *testing.T) {
		svc := &fakeChat{err: &llm.GatewayError{Kind: llm.KindTransport, Provider: "ollama", Err: errors.New("connection refused")}}
		w := postJSON(t, HandleListModels(svc), "/v1/models/list", `{"provider":"ollama","baseUrl":"http://localhost:1"}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, decode(t, w)["error"], "connection refused")
	})
}

func TestHandleModelExists(t *testing.T) {
	svc := &fakeChat{exists: true}
	w := postJSON(t, HandleModelExists(svc), "/v1/models/exists",
		`{"config":{"provider":"ollama","baseUrl":"http://localhost:11434"},"model":"llama3"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exists":true}`, w.Body.String())

	svc.exists = false
	w = postJSON(t, HandleModelExists(svc), "/v1/models/exists",
		`{"config":{"provider":"ollama","baseUrl":"http://localhost:11434"},"model":"llama"}`)
	assert.JSONEq(t, `{"exists":false}`, w.Body.String())
}

func TestHandleModelPull(t *testing.T) {
	t.Run("empty baseUrl uses the default daemon", func(t *testing.T) {
		var gotURL atomic.Value
		hub := stream.NewHub(&hubChatter{}, stream.WithPuller(
			func(_ context.Context, req datatypes.PullRequest, progress llm.PullProgressFunc) error {
				gotURL.Store(req.BaseURL)
				return nil
			}))
		defer hub.Close()

		w := postJSON(t, HandleModelPull(hub, defaultsResolver), "/v1/models/pull", `{"name":"llama3"}`)

		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		handle := decode(t, w)["stream_id"].(string)
		assert.True(t, strings.HasPrefix(handle, "pull-"))
		waitDone(t, hub, datatypes.StreamHandle(handle))
		assert.Equal(t, "http://127.0.0.1:11434", gotURL.Load())
	})

	t.Run("missing name is 400", func(t *testing.T) {
		hub := stream.NewHub(&hubChatter{})
		defer hub.Close()

		w := postJSON(t, HandleModelPull(hub, defaultsResolver), "/v1/models/pull", `{"baseUrl":"http://localhost:11434"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode(t, w)["error"], "invalid pull request")
	})
}

func TestHandleEnsureDaemon(t *testing.T) {
	svc := &fakeDaemon{ready: true}
	w := postJSON(t, HandleEnsureDaemon(svc, defaultsResolver), "/v1/daemon/ensure", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ready":true}`, w.Body.String())
	assert.Equal(t, "http://127.0.0.1:11434/", svc.gotCfg.BaseURL)

	svc.ready = false
	w = postJSON(t, HandleEnsureDaemon(svc, nil), "/v1/daemon/ensure", `{"provider":"ollama","baseUrl":"http://10.0.0.2:11434"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ready":false}`, w.Body.String())
	assert.Equal(t, "http://10.0.0.2:11434", svc.gotCfg.BaseURL)
	assert.Equal(t, int32(2), svc.calls.Load())
}

// =============================================================================
// Streamed chat
// =============================================================================

func TestHandleChatStream_ReturnsHandleBeforeCompletion(t *testing.T) {
	chatter := &hubChatter{reply: "done", hold: make(chan struct{})}
	hub := stream.NewHub(chatter)
	defer hub.Close()

	w := postJSON(t, HandleChatStream(hub), "/v1/chat/stream", chatBody)

	require.Equal(t, http.StatusAccepted, w.Code)
	handle := decode(t, w)["stream_id"].(string)
	assert.True(t, strings.HasPrefix(handle, "stream-"))
	assert.Equal(t, 1, hub.Active())

	close(chatter.hold)
	waitDone(t, hub, datatypes.StreamHandle(handle))
}

func TestHandleChatStream_InvalidRequest(t *testing.T) {
	hub := stream.NewHub(&hubChatter{})
	defer hub.Close()

	w := postJSON(t, HandleChatStream(hub), "/v1/chat/stream",
		`{"config":{"provider":"ollama","baseUrl":"http://localhost:11434"},"messages":[]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decode(t, w)["error"])
}

func TestHandleStreamEvents_FramesChunksThenEnd(t *testing.T) {
	hub := stream.NewHub(&hubChatter{reply: "Hello, world!"})
	defer hub.Close()
	handle, err := hub.StartChat(datatypes.ChatRequest{
		Config:   datatypes.GatewayConfig{Provider: datatypes.ProviderOllama, BaseURL: "http://localhost:11434"},
		Messages: []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/v1/streams/:id/events", HandleStreamEvents(hub, StreamOptions{}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/streams/"+string(handle)+"/events", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	frames := parseSSE(t, w.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, []string{"chunk", "chunk", "end"}, []string{frames[0].event, frames[1].event, frames[2].event})

	var text strings.Builder
	for i, f := range frames {
		var ev datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(f.data), &ev))
		assert.Equal(t, f.id, ev.ID)
		assert.Equal(t, handle, ev.StreamID)
		assert.Equal(t, i, ev.Seq)
		text.WriteString(ev.Text)
	}
	assert.Equal(t, "Hello, world!", text.String())
}

func TestHandleStreamEvents_FromSequence(t *testing.T) {
	hub := stream.NewHub(&hubChatter{reply: "0123456789abcdef"})
	defer hub.Close()
	handle, err := hub.StartChat(datatypes.ChatRequest{
		Config:   datatypes.GatewayConfig{Provider: datatypes.ProviderOllama, BaseURL: "http://localhost:11434"},
		Messages: []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	waitDone(t, hub, handle)

	router := gin.New()
	router.GET("/v1/streams/:id/events", HandleStreamEvents(hub, StreamOptions{}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/streams/"+string(handle)+"/events?from=1", nil))

	frames := parseSSE(t, w.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "chunk", frames[0].event)
	assert.Contains(t, frames[0].data, `"text":"89abcdef"`)
	assert.Equal(t, "end", frames[1].event)
}

func TestHandleStreamEvents_ErrorEvent(t *testing.T) {
	hub := stream.NewHub(&hubChatter{err: &llm.GatewayError{Kind: llm.KindUpstream, Provider: "ollama", Message: "model not found"}})
	defer hub.Close()
	handle, err := hub.StartChat(datatypes.ChatRequest{
		Config:   datatypes.GatewayConfig{Provider: datatypes.ProviderOllama, BaseURL: "http://localhost:11434"},
		Messages: []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/v1/streams/:id/events", HandleStreamEvents(hub, StreamOptions{}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/streams/"+string(handle)+"/events", nil))

	frames := parseSSE(t, w.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].event)
	assert.Contains(t, frames[0].data, `"error":"model not found"`)
}

func TestHandleStreamEvents_BadRequests(t *testing.T) {
	hub := stream.NewHub(&hubChatter{})
	defer hub.Close()
	router := gin.New()
	router.GET("/v1/streams/:id/events", HandleStreamEvents(hub, StreamOptions{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/streams/stream-missing/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w)["error"], "not found")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/streams/stream-missing/events?from=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStreamEvents_KeepAliveAndDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewGatewayMetrics(reg)
	chatter := &hubChatter{reply: "late", hold: make(chan struct{})}
	hub := stream.NewHub(chatter)
	defer func() {
		close(chatter.hold)
		hub.Close()
	}()
	handle, err := hub.StartChat(datatypes.ChatRequest{
		Config:   datatypes.GatewayConfig{Provider: datatypes.ProviderOllama, BaseURL: "http://localhost:11434"},
		Messages: []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/v1/streams/:id/events", HandleStreamEvents(hub, StreamOptions{KeepAlive: 10 * time.Millisecond, Metrics: metrics}))
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/streams/"+string(handle)+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", line)
	cancel()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.ClientDisconnectsTotal.WithLabelValues(string(observability.TransportSSE))) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.KeepAlivesTotal.WithLabelValues(string(observability.TransportSSE))), 1.0)
	assert.Equal(t, 1, hub.Active(), "a departed client does not stop the stream")
}

// =============================================================================
// Cancel
// =============================================================================

func TestHandleCancelStream(t *testing.T) {
	chatter := &hubChatter{hold: make(chan struct{})}
	defer close(chatter.hold)
	hub := stream.NewHub(chatter)
	defer hub.Close()
	handle, err := hub.StartChat(datatypes.ChatRequest{
		Config:   datatypes.GatewayConfig{Provider: datatypes.ProviderOllama, BaseURL: "http://localhost:11434"},
		Messages: []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	router := gin.New()
	router.DELETE("/v1/streams/:id", HandleCancelStream(hub))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/streams/"+string(handle), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	sub, err := hub.Subscribe(handle, 0)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, datatypes.EventError, ev.Type)
	assert.Equal(t, stream.ErrCancelled.Error(), ev.Error)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/streams/stream-unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// WebSocket
// =============================================================================

func TestHandleStreamSocket(t *testing.T) {
	hub := stream.NewHub(&hubChatter{reply: "Hello, world!"})
	defer hub.Close()
	handle, err := hub.StartChat(datatypes.ChatRequest{
		Config:   datatypes.GatewayConfig{Provider: datatypes.ProviderOllama, BaseURL: "http://localhost:11434"},
		Messages: []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/v1/streams/:id/ws", HandleStreamSocket(hub, StreamOptions{}))
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/streams/" + string(handle) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var events []datatypes.StreamEvent
	for {
		var ev datatypes.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, datatypes.EventChunk, events[0].Type)
	assert.Equal(t, "Hello, w", events[0].Text)
	assert.Equal(t, "orld!", events[1].Text)
	assert.Equal(t, datatypes.EventEnd, events[2].Type)
}

func TestHandleStreamSocket_UnknownHandle(t *testing.T) {
	hub := stream.NewHub(&hubChatter{})
	defer hub.Close()
	router := gin.New()
	router.GET("/v1/streams/:id/ws", HandleStreamSocket(hub, StreamOptions{}))
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/streams/stream-nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// SSE writer
// =============================================================================

type noFlush struct{ http.ResponseWriter }

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(noFlush{httptest.NewRecorder()})
	assert.Error(t, err)
}

func TestSSEWriter_Frame(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteEvent(datatypes.StreamEvent{ID: "abc", StreamID: "stream-1", Type: datatypes.EventChunk, Text: "hi"}))
	require.NoError(t, w.WriteKeepAlive())

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "id: abc\nevent: chunk\ndata: {"))
	assert.True(t, strings.HasSuffix(body, "\n\n: ping\n\n"))
	assert.True(t, rec.Flushed)
	assert.Equal(t, 1, bytes.Count([]byte(body), []byte("data: ")))
}

func TestRespondError_Status(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", stream.ErrStreamNotFound, http.StatusNotFound},
		{"hub closed", stream.ErrHubClosed, http.StatusServiceUnavailable},
		{"adapter", &llm.GatewayError{Kind: llm.KindEmptyResponse, Provider: "ollama"}, http.StatusBadGateway},
		{"other", errors.New("bad input"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.err.Error(), decode(t, w)["error"])
		})
	}
}
