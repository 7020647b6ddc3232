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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

const providerOpenAI = "openai"

// OpenAIClient talks to any OpenAI-compatible HTTP API.
//
// Chat goes to {base}/chat/completions and the model list to
// {base}/v1/models, so base is normally the API root including its version
// segment for chat (e.g. "https://api.openai.com/v1") and the host root for
// listing. Both paths follow the desktop client's historical behaviour.
type OpenAIClient struct {
	chat    *openai.Client
	models  *openai.Client
	baseURL string
	hasKey  bool
}

// NewOpenAIClient creates a client for baseURL with an optional bearer key.
func NewOpenAIClient(baseURL, apiKey string, opts ...Option) *OpenAIClient {
	o := buildOptions(opts)
	base := strings.TrimRight(baseURL, "/")

	httpClient := &http.Client{
		Transport:     &headerTransport{base: o.httpClient.Transport},
		Timeout:       o.httpClient.Timeout,
		CheckRedirect: o.httpClient.CheckRedirect,
		Jar:           o.httpClient.Jar,
	}

	chatCfg := openai.DefaultConfig(apiKey)
	chatCfg.BaseURL = base
	chatCfg.HTTPClient = httpClient

	modelsCfg := openai.DefaultConfig(apiKey)
	modelsCfg.BaseURL = base + "/v1"
	modelsCfg.HTTPClient = httpClient

	return &OpenAIClient{
		chat:    openai.NewClientWithConfig(chatCfg),
		models:  openai.NewClientWithConfig(modelsCfg),
		baseURL: base,
		hasKey:  apiKey != "",
	}
}

// Chat runs one non-streamed completion.
//
// # Description
//
// Sends {model, messages, stream:false, temperature}. Temperature defaults
// to 0.6 when call.Temperature is nil; an explicit 0 is still sent. The think flag has no remote
// equivalent and is ignored.
//
// # Outputs
//
//   - string: choices[0].message.content.
//   - error: KindUpstream with the provider's error.message (or the raw
//     body) on failure statuses, KindTransport when unreachable,
//     KindEmptyResponse when the answer has no choices or cannot be decoded.
//
// # Limitations
//
//   - There is no secondary endpoint; a failure here is final.
func (c *OpenAIClient) Chat(ctx context.Context, call ChatCall) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Chat")
	defer span.End()

	temperature := remoteTemperature(call.Temperature)
	span.SetAttributes(
		attribute.String("llm.provider", providerOpenAI),
		attribute.String("llm.model", call.Model),
		attribute.Int("llm.num_messages", len(call.Messages)),
		attribute.Float64("llm.temperature", temperature),
	)

	req := openai.ChatCompletionRequest{
		Model:       call.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(call.Messages)),
		Stream:      false,
		Temperature: wireTemperature(temperature),
	}
	for _, m := range call.Messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	slog.Debug("Sending chat completion", "base_url", c.baseURL, "model", call.Model,
		"api_key_present", c.hasKey)

	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", failSpan(span, classifyOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		raw, _ := json.Marshal(resp)
		return "", failSpan(span, emptyResponseError(providerOpenAI, http.StatusOK, raw))
	}
	slog.Debug("Received chat completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// remoteTemperature returns t or DefaultRemoteTemperature when unset.
func remoteTemperature(t *float64) float64 {
	if t == nil {
		return datatypes.DefaultRemoteTemperature
	}
	return *t
}

// wireTemperature converts t for go-openai, whose Temperature field is
// omitempty. A zero would vanish from the body and the provider would use
// its own default, so 0 goes out as the smallest positive float32.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// ListModels returns the ids from {base}/v1/models.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.ListModels")
	defer span.End()

	list, err := c.models.ListModels(ctx)
	if err != nil {
		return nil, failSpan(span, classifyOpenAIError(err))
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	span.SetAttributes(attribute.Int("llm.model_count", len(ids)))
	return ids, nil
}

// classifyOpenAIError maps go-openai errors onto the gateway taxonomy.
func classifyOpenAIError(err error) *GatewayError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		gerr := upstreamError(providerOpenAI, apiErr.HTTPStatusCode, nil, apiErr.Message)
		if gerr.Message == "" {
			gerr.Message = apiErr.Error()
		}
		gerr.Err = err
		return gerr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		gerr := upstreamError(providerOpenAI, reqErr.HTTPStatusCode, reqErr.Body, string(reqErr.Body))
		if gerr.Message == "" {
			gerr.Message = reqErr.Error()
		}
		gerr.Err = err
		return gerr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return transportError(providerOpenAI, err)
	}
	// A success status whose body could not be decoded.
	gerr := emptyResponseError(providerOpenAI, http.StatusOK, []byte(err.Error()))
	gerr.Err = err
	return gerr
}

// headerTransport drops an empty bearer credential and sets User-Agent.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if auth := strings.TrimSpace(out.Header.Get("Authorization")); auth == "Bearer" || auth == "" {
		out.Header.Del("Authorization")
	}
	out.Header.Set("User-Agent", UserAgent)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}
