// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared by the gateway's
// adapters, supervisor, dispatcher, stream hub, and HTTP handlers.
//
// Nothing in this package holds state across calls. A GatewayConfig is
// supplied fresh by the caller for every operation.
package datatypes

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Provider identifiers
// =============================================================================

// Provider names the backend family a GatewayConfig targets.
type Provider string

const (
	// ProviderOllama is the locally-running inference daemon.
	ProviderOllama Provider = "ollama"

	// ProviderOpenAI is any remote OpenAI-compatible HTTP API.
	ProviderOpenAI Provider = "openai"
)

// IsLocal reports whether p is the local daemon provider.
func (p Provider) IsLocal() bool {
	return p == ProviderOllama
}

const (
	// DefaultOllamaURL is used when neither config nor OLLAMA_HOST set a URL.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOllamaExecutable is resolved through PATH.
	DefaultOllamaExecutable = "ollama"

	// DefaultRemoteTemperature applies to the remote provider when the
	// caller does not set one.
	DefaultRemoteTemperature = 0.6
)

// =============================================================================
// Validation
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		switch Provider(fl.Field().String()) {
		case ProviderOllama, ProviderOpenAI:
			return true
		}
		return false
	})
}

// =============================================================================
// GatewayConfig
// =============================================================================

// GatewayConfig is the per-call backend configuration.
//
// # Description
//
// The UI sends a GatewayConfig with every request. It is immutable for the
// duration of one call and never retained afterwards.
//
// # Fields
//
//   - Provider: "ollama" or "openai".
//   - BaseURL: Endpoint base, e.g. "http://localhost:11434" or
//     "https://api.openai.com/v1".
//   - APIKey: Optional bearer credential (remote provider only).
//   - Model: Optional default model, used when a request omits one and by
//     the daemon warm-start fallback.
//   - OllamaPath: Optional daemon executable path. Empty means "ollama".
//   - Temperature: Optional sampling temperature (remote provider).
//   - DefaultThink: Optional reasoning toggle used when a request omits it.
//   - MaxContextMessages: Optional cap on non-system history messages.
//     0 or nil means unlimited.
type GatewayConfig struct {
	Provider           Provider `json:"provider" yaml:"provider" toml:"provider" validate:"required,provider"`
	BaseURL            string   `json:"baseUrl" yaml:"base_url" toml:"base_url" validate:"required,url"`
	APIKey             string   `json:"apiKey,omitempty" yaml:"api_key,omitempty" toml:"api_key"`
	Model              string   `json:"model,omitempty" yaml:"model,omitempty" toml:"model"`
	OllamaPath         string   `json:"ollamaPath,omitempty" yaml:"ollama_path,omitempty" toml:"ollama_path"`
	Temperature        *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature" validate:"omitempty,gte=0,lte=2"`
	DefaultThink       *bool    `json:"defaultThink,omitempty" yaml:"default_think,omitempty" toml:"default_think"`
	MaxContextMessages *int     `json:"maxContextMessages,omitempty" yaml:"max_context_messages,omitempty" toml:"max_context_messages" validate:"omitempty,gte=0"`
}

// Validate checks the config with go-playground/validator tags.
func (c *GatewayConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}
	return nil
}

// TrimmedBaseURL returns BaseURL without trailing slashes.
func (c GatewayConfig) TrimmedBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// Executable returns the daemon executable, falling back to "ollama" when
// OllamaPath is empty or whitespace.
func (c GatewayConfig) Executable() string {
	if p := strings.TrimSpace(c.OllamaPath); p != "" {
		return p
	}
	return DefaultOllamaExecutable
}

// HistoryCap returns MaxContextMessages, or 0 for unlimited.
func (c GatewayConfig) HistoryCap() int {
	if c.MaxContextMessages == nil || *c.MaxContextMessages < 0 {
		return 0
	}
	return *c.MaxContextMessages
}

// Merge fills every empty field of c from defaults and returns the result.
// Fields the caller set always win.
//
// Endpoint fields (BaseURL, APIKey, Model, OllamaPath) are only inherited
// when c names no provider or the same provider as defaults, so a request
// never mixes one provider's endpoint with another's. The stored APIKey is
// only inherited together with the stored BaseURL: a request that supplies
// its own BaseURL must supply its own credential.
func (c GatewayConfig) Merge(defaults GatewayConfig) GatewayConfig {
	out := c
	if out.Provider == "" {
		out.Provider = defaults.Provider
	}
	if out.Provider == defaults.Provider {
		if out.BaseURL == "" {
			out.BaseURL = defaults.BaseURL
			if out.APIKey == "" {
				out.APIKey = defaults.APIKey
			}
		}
		if out.Model == "" {
			out.Model = defaults.Model
		}
		if out.OllamaPath == "" {
			out.OllamaPath = defaults.OllamaPath
		}
	}
	if out.Temperature == nil {
		out.Temperature = defaults.Temperature
	}
	if out.DefaultThink == nil {
		out.DefaultThink = defaults.DefaultThink
	}
	if out.MaxContextMessages == nil {
		out.MaxContextMessages = defaults.MaxContextMessages
	}
	return out
}
