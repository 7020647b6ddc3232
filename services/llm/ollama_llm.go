// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const providerOllama = "ollama"

// noThinkDirective is appended to the last message (or prompt) when think
// mode is off. Older daemons have no native reasoning toggle and honour
// this in-band marker instead.
const noThinkDirective = "/no_think"

// OllamaClient talks to the local inference daemon.
//
// It is safe for concurrent use and holds no per-call state.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
}

type ollamaChatRequest struct {
	Model    *string                 `json:"model"`
	Messages []datatypes.ChatMessage `json:"messages"`
	Stream   bool                    `json:"stream"`
	Options  map[string]any          `json:"options,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   *string        `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// NewOllamaClient creates a client for the daemon at baseURL.
//
// # Inputs
//
//   - baseURL: Daemon URL, e.g. "http://localhost:11434". Trailing slashes
//     are removed.
//   - opts: WithHTTPClient to override the transport.
//
// # Examples
//
//	client := llm.NewOllamaClient("http://localhost:11434")
//	text, err := client.Chat(ctx, llm.ChatCall{Model: "llama3", Messages: msgs})
func NewOllamaClient(baseURL string, opts ...Option) *OllamaClient {
	o := buildOptions(opts)
	return &OllamaClient{
		httpClient: o.httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Chat runs one non-streamed chat turn against the daemon.
//
// # Description
//
// POSTs to /api/chat and extracts message.content, then response. When the
// daemon answers with a failure status and a JSON body, its "error" field
// (or the raw body) is returned as a KindUpstream error. Otherwise the
// messages are flattened into a single prompt and sent to /api/generate,
// whose "response" field is tried next. When nothing usable comes back the
// call fails with KindEmptyResponse carrying the last status and body.
//
// Think mode is translated the same way for both endpoints: think=true adds
// options.reasoning.effort="medium"; think=false appends " /no_think" to the
// last message content or to the prompt.
//
// # Inputs
//
//   - ctx: Cancels the outbound requests.
//   - call: Model (empty sends a JSON null), messages, think flag, and an
//     optional temperature forwarded as options.temperature.
//
// # Outputs
//
//   - string: Response text, returned unmodified.
//   - error: *GatewayError.
//
// # Limitations
//
//   - No retries. The generate fallback is the only second attempt.
func (c *OllamaClient) Chat(ctx context.Context, call ChatCall) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", providerOllama),
		attribute.String("llm.model", call.Model),
		attribute.Int("llm.num_messages", len(call.Messages)),
		attribute.Bool("llm.think", call.Think),
	)

	chatReq := ollamaChatRequest{
		Model:    nullableModel(call.Model),
		Messages: applyThinkToMessages(call.Messages, call.Think),
		Stream:   false,
		Options:  ollamaOptions(call),
	}
	status, body, err := c.postJSON(ctx, "/api/chat", chatReq)
	if err != nil {
		return "", failSpan(span, transportError(providerOllama, err))
	}
	if text, strategy, ok := ollamaChatStrategies.first(body); ok {
		span.SetAttributes(attribute.String("llm.strategy", strategy))
		return text, nil
	}
	if !isSuccess(status) && json.Valid(body) {
		return "", failSpan(span, upstreamError(providerOllama, status, body, errorMessage(body, "error")))
	}

	slog.Debug("Ollama chat returned no content, falling back to generate",
		"status", status, "model", call.Model)

	genReq := ollamaGenerateRequest{
		Model:   nullableModel(call.Model),
		Prompt:  applyThinkToPrompt(datatypes.FlattenMessages(call.Messages), call.Think),
		Stream:  false,
		Options: ollamaOptions(call),
	}
	genStatus, genBody, err := c.postJSON(ctx, "/api/generate", genReq)
	if err != nil {
		return "", failSpan(span, transportError(providerOllama, err))
	}
	if text, strategy, ok := ollamaGenerateStrategies.first(genBody); ok {
		span.SetAttributes(attribute.String("llm.strategy", "generate."+strategy))
		return text, nil
	}
	if !isSuccess(genStatus) && json.Valid(genBody) {
		return "", failSpan(span, upstreamError(providerOllama, genStatus, genBody, errorMessage(genBody, "error")))
	}
	return "", failSpan(span, emptyResponseError(providerOllama, genStatus, genBody))
}

// postJSON sends payload to path and returns the status and full body.
func (c *OllamaClient) postJSON(ctx context.Context, path string, payload any) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// -----------------------------------------------------------------------------
// Think-mode translation
// -----------------------------------------------------------------------------

// applyThinkToMessages returns messages with the no-think directive appended
// to the last message when think is false. The input slice is not modified.
func applyThinkToMessages(messages []datatypes.ChatMessage, think bool) []datatypes.ChatMessage {
	out := make([]datatypes.ChatMessage, len(messages))
	copy(out, messages)
	if !think && len(out) > 0 {
		last := len(out) - 1
		out[last].Content = out[last].Content + " " + noThinkDirective
	}
	return out
}

func applyThinkToPrompt(prompt string, think bool) string {
	if think {
		return prompt
	}
	return prompt + " " + noThinkDirective
}

// ollamaOptions builds the request options: the reasoning hint when think is
// on and the temperature when the caller set one.
func ollamaOptions(call ChatCall) map[string]any {
	var opts map[string]any
	if call.Think {
		opts = map[string]any{"reasoning": map[string]any{"effort": "medium"}}
	}
	if call.Temperature != nil {
		if opts == nil {
			opts = map[string]any{}
		}
		opts["temperature"] = *call.Temperature
	}
	return opts
}

func nullableModel(model string) *string {
	if model == "" {
		return nil
	}
	return &model
}

func failSpan(span trace.Span, err *GatewayError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("llm.error_kind", err.Kind.String()))
	return err
}
