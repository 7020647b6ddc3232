// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch routes one chat turn, model listing or model check to
// the backend named by its GatewayConfig.
package dispatch

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianGateway/pkg/logging"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
	"github.com/AleutianAI/AleutianGateway/services/llm"
)

var tracer = otel.Tracer("aleutian.gateway.dispatch")

// ModelEnsurer pre-warms a local model before a chat. It is satisfied by
// *daemon.Supervisor.
type ModelEnsurer interface {
	EnsureModel(ctx context.Context, cfg datatypes.GatewayConfig, model string) bool
}

// ProviderFactory builds the adapter for a config.
type ProviderFactory func(cfg datatypes.GatewayConfig) (llm.ChatProvider, error)

// DefaultsFunc returns the config used to fill fields a request omits. It
// is called once per operation so a reloaded file takes effect at once.
type DefaultsFunc func() datatypes.GatewayConfig

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithModelEnsurer sets the local pre-warm step. Without one, local chats
// go straight to the adapter.
func WithModelEnsurer(e ModelEnsurer) Option {
	return func(d *Dispatcher) { d.ensurer = e }
}

// WithProviderFactory replaces llm.NewProvider.
func WithProviderFactory(f ProviderFactory) Option {
	return func(d *Dispatcher) { d.factory = f }
}

// WithHTTPClient builds adapters over c.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.factory = func(cfg datatypes.GatewayConfig) (llm.ChatProvider, error) {
			return llm.NewProvider(cfg, llm.WithHTTPClient(c))
		}
	}
}

// WithDefaults sets the defaults source.
func WithDefaults(f DefaultsFunc) Option {
	return func(d *Dispatcher) { d.defaults = f }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.GatewayMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher is the single entry point from the gateway's surfaces into the
// adapters. It performs no retries: one dispatch is one adapter call.
type Dispatcher struct {
	ensurer  ModelEnsurer
	factory  ProviderFactory
	defaults DefaultsFunc
	logger   *logging.Logger
	metrics  *observability.GatewayMetrics
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		factory: func(cfg datatypes.GatewayConfig) (llm.ChatProvider, error) {
			return llm.NewProvider(cfg)
		},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve fills cfg's empty fields from the defaults.
func (d *Dispatcher) Resolve(cfg datatypes.GatewayConfig) datatypes.GatewayConfig {
	if d.defaults == nil {
		return cfg
	}
	return cfg.Merge(d.defaults())
}

// Prepare resolves and validates req in place. It is the synchronous part
// of a chat and the stream hub calls it before handing out a handle.
func (d *Dispatcher) Prepare(req *datatypes.ChatRequest) error {
	req.Config = d.Resolve(req.Config)
	return req.Validate()
}

// Chat dispatches one chat turn.
//
// # Description
//
// The request's config is merged with the defaults and validated. History
// is trimmed to the config's cap. For the local daemon the model is first
// pre-warmed (best-effort); then exactly one adapter call is made.
//
// # Outputs
//
//   - string: The assistant's text.
//   - error: A validation error, or the adapter's *llm.GatewayError.
func (d *Dispatcher) Chat(ctx context.Context, req datatypes.ChatRequest) (string, error) {
	if err := d.Prepare(&req); err != nil {
		return "", err
	}
	cfg := req.Config
	model := req.ResolvedModel()
	think := req.ResolvedThink()
	messages := datatypes.TrimHistory(req.Messages, cfg.HistoryCap())

	ctx, span := tracer.Start(ctx, "Dispatcher.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(cfg.Provider)),
		attribute.String("llm.model", model),
		attribute.Bool("llm.think", think),
		attribute.Int("llm.num_messages", len(messages)),
	)

	if cfg.Provider.IsLocal() && d.ensurer != nil {
		d.ensurer.EnsureModel(ctx, cfg, model)
	}

	provider, err := d.factory(cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	start := time.Now()
	text, err := provider.Chat(ctx, llm.ChatCall{
		Model:       model,
		Messages:    messages,
		Think:       think,
		Temperature: cfg.Temperature,
	})
	d.metrics.RecordAdapterCall(string(cfg.Provider), time.Since(start).Seconds(), errorKind(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.output_len", len(text)))
	return text, nil
}

// ListModels returns the model names the configured backend offers.
func (d *Dispatcher) ListModels(ctx context.Context, cfg datatypes.GatewayConfig) ([]string, error) {
	cfg = d.Resolve(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider, err := d.factory(cfg)
	if err != nil {
		return nil, err
	}
	models, err := provider.ListModels(ctx)
	if err != nil {
		d.logger.Warn("model listing failed", "provider", string(cfg.Provider), "base_url", cfg.BaseURL, "error", err)
		return nil, err
	}
	if models == nil {
		models = []string{}
	}
	return models, nil
}

// ModelExists reports whether model is in the backend's inventory. An
// empty name always exists. Matching is exact.
func (d *Dispatcher) ModelExists(ctx context.Context, cfg datatypes.GatewayConfig, model string) (bool, error) {
	if model == "" {
		d.logger.Info("model check",
			logging.Checkpoint(logging.CheckpointModelCheck),
			"model", "<empty>", "exists", true)
		return true, nil
	}

	cfg = d.Resolve(cfg)
	d.logger.Info("checking model existence",
		logging.Checkpoint(logging.CheckpointModelCheck),
		"model", model, "base_url", cfg.BaseURL)

	models, err := d.ListModels(ctx, cfg)
	if err != nil {
		d.logger.Warn("model check failed",
			logging.Checkpoint(logging.CheckpointModelCheck),
			"model", model, "error", err)
		return false, err
	}

	exists := false
	for _, m := range models {
		if m == model {
			exists = true
			break
		}
	}
	d.logger.Info("model check",
		logging.Checkpoint(logging.CheckpointModelCheck),
		"model", model, "exists", exists, "available_models", models)
	return exists, nil
}

// errorKind labels err for metrics. Empty means success.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if k, ok := llm.KindOf(err); ok {
		return k.String()
	}
	return "OTHER"
}
