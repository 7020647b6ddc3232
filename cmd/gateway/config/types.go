// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianGateway/pkg/logging"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/telemetry"
)

type GatewayFileConfig struct {
	// Server: listener and stream hub settings
	Server ServerConfig `yaml:"server" toml:"server"`

	// Logging: console level and the optional JSON file sink
	Logging logging.Config `yaml:"logging" toml:"logging"`

	// Telemetry: span and OTel metric exporters
	Telemetry telemetry.Config `yaml:"telemetry" toml:"telemetry"`

	// Defaults: fills any field a request leaves empty. Hot-reloaded.
	Defaults datatypes.GatewayConfig `yaml:"defaults" toml:"defaults"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr" toml:"addr"`                     // e.g. 127.0.0.1:8787
	Token         string        `yaml:"token,omitempty" toml:"token"`         // empty disables auth
	Retention     time.Duration `yaml:"retention" toml:"retention"`           // finished-stream TTL
	MaxConcurrent int           `yaml:"max_concurrent" toml:"max_concurrent"` // running operations
	HTTPTimeout   time.Duration `yaml:"http_timeout" toml:"http_timeout"`     // 0 = transport default
	KeepAlive     time.Duration `yaml:"keepalive" toml:"keepalive"`           // SSE/WS idle frame
}

func DefaultConfig() GatewayFileConfig {
	temperature := datatypes.DefaultRemoteTemperature
	think := true
	history := 20
	return GatewayFileConfig{
		Server: ServerConfig{
			Addr:          "127.0.0.1:8787",
			Retention:     5 * time.Minute,
			MaxConcurrent: 16,
			KeepAlive:     15 * time.Second,
		},
		Logging: logging.Config{
			LevelName: "info",
			LogDir:    "~/.aleutian/logs",
			Service:   "gateway",
		},
		Telemetry: telemetry.DefaultConfig(),
		Defaults: datatypes.GatewayConfig{
			Provider:           datatypes.ProviderOllama,
			BaseURL:            datatypes.DefaultOllamaURL,
			Model:              "gpt-oss:20b",
			Temperature:        &temperature,
			DefaultThink:       &think,
			MaxContextMessages: &history,
		},
	}
}

// Validate checks the fields the server cannot start without.
func (c *GatewayFileConfig) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.MaxConcurrent < 0 {
		return fmt.Errorf("server.max_concurrent must be >= 0, got %d", c.Server.MaxConcurrent)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

// normalizeHost turns an OLLAMA_HOST value such as "0.0.0.0:11434" or
// ":11434" into a base URL. Values that already carry a scheme pass through.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		return strings.TrimRight(host, "/")
	}
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	if strings.HasPrefix(host, "0.0.0.0") {
		host = "127.0.0.1" + strings.TrimPrefix(host, "0.0.0.0")
	}
	u := url.URL{Scheme: "http", Host: host}
	if u.Port() == "" {
		u.Host = host + ":11434"
	}
	return u.String()
}
