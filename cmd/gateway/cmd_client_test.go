// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGateway/services/daemon"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

func userTurn(text string) datatypes.ChatRequest {
	return datatypes.ChatRequest{Messages: []datatypes.ChatMessage{{Role: datatypes.RoleUser, Content: text}}}
}

func TestRunStreamedChat_PrintsWholeReply(t *testing.T) {
	daemonSrv := newMockOllama(t, "The quick brown fox jumps")
	a := newTestApp(t, testConfig(daemonSrv.URL), nil)

	var out bytes.Buffer
	require.NoError(t, runStreamedChat(context.Background(), a, &out, userTurn("hi")))
	assert.Equal(t, "The quick brown fox jumps\n", out.String())
}

func TestRunStreamedChat_ErrorEvent(t *testing.T) {
	a := newTestApp(t, testConfig("http://127.0.0.1:1"), &daemon.MockLauncher{
		ServeFunc: func(context.Context, string) error { return errors.New("no daemon") },
	})

	var out bytes.Buffer
	err := runStreamedChat(context.Background(), a, &out, userTurn("hi"))
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestRunStreamedChat_Invalid(t *testing.T) {
	a := newTestApp(t, testConfig("http://127.0.0.1:1"), nil)
	err := runStreamedChat(context.Background(), a, &bytes.Buffer{}, datatypes.ChatRequest{})
	assert.Error(t, err)
}

func TestRunDirectChat(t *testing.T) {
	daemonSrv := newMockOllama(t, "direct reply")
	a := newTestApp(t, testConfig(daemonSrv.URL), nil)

	var out bytes.Buffer
	require.NoError(t, runDirectChat(context.Background(), a, &out, userTurn("hi")))
	assert.Equal(t, "direct reply\n", out.String())
}

func TestRunModels(t *testing.T) {
	daemonSrv := newMockOllama(t, "")
	a := newTestApp(t, testConfig(daemonSrv.URL), nil)

	var out bytes.Buffer
	require.NoError(t, runModels(context.Background(), a, &out, datatypes.GatewayConfig{}))
	assert.Equal(t, "llama3:latest\nqwen3:8b\n", out.String())
}

func TestRunExists(t *testing.T) {
	daemonSrv := newMockOllama(t, "")
	a := newTestApp(t, testConfig(daemonSrv.URL), nil)

	var out bytes.Buffer
	require.NoError(t, runExists(context.Background(), a, &out, datatypes.GatewayConfig{}, "qwen3:8b"))
	assert.Equal(t, "true\n", out.String())

	out.Reset()
	err := runExists(context.Background(), a, &out, datatypes.GatewayConfig{}, "mistral")
	assert.ErrorIs(t, err, errSilentFailure)
	assert.Equal(t, "false\n", out.String())
}

func TestRunPull_PlainOutput(t *testing.T) {
	daemonSrv := newMockOllama(t, "")
	a := newTestApp(t, testConfig(daemonSrv.URL), nil)

	var out bytes.Buffer
	require.NoError(t, runPull(context.Background(), a, newProgressRenderer(&out, false), datatypes.GatewayConfig{}, "llama3"))

	assert.Equal(t, int32(1), daemonSrv.pulls.Load())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"pulling manifest",
		"downloading 50.0%",
		"downloading 100.0%",
		"success",
		"success",
	}, lines)
}

func TestRunPull_RawOutput(t *testing.T) {
	daemonSrv := newMockOllama(t, "")
	a := newTestApp(t, testConfig(daemonSrv.URL), nil)

	var out bytes.Buffer
	require.NoError(t, runPull(context.Background(), a, newProgressRenderer(&out, true), datatypes.GatewayConfig{}, "llama3"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], `"type":"progress"`)
	assert.Contains(t, lines[4], `"type":"end"`)
}

func TestRunPull_Unreachable(t *testing.T) {
	a := newTestApp(t, testConfig("http://127.0.0.1:1"), nil)

	var out bytes.Buffer
	err := runPull(context.Background(), a, newProgressRenderer(&out, false), datatypes.GatewayConfig{}, "llama3")
	require.Error(t, err)
	assert.Contains(t, out.String(), "error: ")
}

func TestRunEnsure(t *testing.T) {
	daemonSrv := newMockOllama(t, "")
	launcher := &daemon.MockLauncher{}
	a := newTestApp(t, testConfig(daemonSrv.URL), launcher)

	var out bytes.Buffer
	require.NoError(t, runEnsure(context.Background(), a, &out, datatypes.GatewayConfig{}))
	assert.Equal(t, "true\n", out.String())
	assert.Equal(t, 0, launcher.Serves())

	down := newTestApp(t, testConfig("http://127.0.0.1:1"), launcher)
	out.Reset()
	err := runEnsure(context.Background(), down, &out, datatypes.GatewayConfig{})
	assert.ErrorIs(t, err, errSilentFailure)
	assert.Equal(t, "false\n", out.String())
	assert.Equal(t, 1, launcher.Serves())
}

func TestRequestConfig(t *testing.T) {
	flagProvider, flagBaseURL, flagAPIKey, flagOllamaPath = " OpenAI ", " https://api.example.com/v1 ", "sk-1", ""
	t.Cleanup(func() { flagProvider, flagBaseURL, flagAPIKey, flagOllamaPath = "", "", "", "" })

	cfg := requestConfig()
	assert.Equal(t, datatypes.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "https://api.example.com/v1", cfg.BaseURL)
	assert.Equal(t, "sk-1", cfg.APIKey)
	assert.Empty(t, cfg.OllamaPath)
}

func TestRootCommand_Registers(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "chat", "models", "exists", "pull", "ensure"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.NotNil(t, chatCmd.Flags().Lookup("think"))
	assert.NotNil(t, pullCmd.Flags().Lookup("base-url"))
}
