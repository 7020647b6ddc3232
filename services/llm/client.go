// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm contains the provider adapters that translate a normalized
// chat call into a backend-specific HTTP exchange and back.
//
// Two adapters exist:
//
//	┌──────────────┐   POST /api/chat, /api/generate   ┌─────────────────┐
//	│ OllamaClient │ ────────────────────────────────► │  local daemon   │
//	└──────────────┘   GET /api/tags, POST /api/pull   └─────────────────┘
//	┌──────────────┐   POST {base}/chat/completions    ┌─────────────────┐
//	│ OpenAIClient │ ────────────────────────────────► │ remote provider │
//	└──────────────┘   GET {base}/v1/models            └─────────────────┘
//
// Adapters never retry. Every failure is a *GatewayError.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aleutian.gateway.llm")

// UserAgent is sent on every outbound provider request.
const UserAgent = "AleutianGateway/1.0"

// ChatCall is one normalized chat turn.
type ChatCall struct {
	Model       string
	Messages    []datatypes.ChatMessage
	Think       bool
	Temperature *float64
}

// ChatProvider is implemented by each backend adapter.
type ChatProvider interface {
	// Chat returns the assistant's text for call.
	Chat(ctx context.Context, call ChatCall) (string, error)

	// ListModels returns the model identifiers the backend offers.
	ListModels(ctx context.Context) ([]string, error)
}

// Option configures an adapter.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the default HTTP client. The gateway uses it to
// impose server.http_timeout and tests use it to point at httptest servers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewProvider returns the adapter for cfg.Provider.
func NewProvider(cfg datatypes.GatewayConfig, opts ...Option) (ChatProvider, error) {
	switch cfg.Provider {
	case datatypes.ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, opts...), nil
	case datatypes.ProviderOpenAI:
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
