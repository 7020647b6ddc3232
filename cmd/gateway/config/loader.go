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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the file is read.
const (
	EnvAddr       = "GATEWAY_ADDR"
	EnvToken      = "GATEWAY_TOKEN"
	EnvOllamaHost = "OLLAMA_HOST"
	EnvOllamaPath = "OLLAMA_PATH"
)

// DefaultPath returns ~/.aleutian/gateway.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "gateway.yaml"), nil
}

// Load reads the config at path, creating it with defaults on first run.
//
// # Description
//
// An empty path means DefaultPath. Files ending in .toml are decoded with
// BurntSushi/toml; anything else is YAML. Keys missing from the file keep
// their DefaultConfig values. Environment overrides are applied last and
// the result is validated.
func Load(path string) (GatewayFileConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return GatewayFileConfig{}, err
		}
		path = p
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return GatewayFileConfig{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return GatewayFileConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return GatewayFileConfig{}, err
	}
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return GatewayFileConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over DefaultConfig, choosing the format from path.
func Parse(path string, data []byte) (GatewayFileConfig, error) {
	cfg := DefaultConfig()
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return GatewayFileConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GatewayFileConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := encode(path, DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func encode(path string, cfg GatewayFileConfig) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode the default config: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode the default config: %w", err)
	}
	return data, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func applyEnv(cfg *GatewayFileConfig, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		cfg.Server.Token = v
	}
	if v := normalizeHost(getenv(EnvOllamaHost)); v != "" && cfg.Defaults.Provider.IsLocal() {
		cfg.Defaults.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvOllamaPath)); v != "" {
		cfg.Defaults.OllamaPath = v
	}
}
