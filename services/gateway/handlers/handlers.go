// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the gateway to the UI over HTTP.
//
// Request/response endpoints answer JSON. Errors are always
// {"error": "<human-readable text>"}. Stream events are delivered over
// Server-Sent Events or a WebSocket, one StreamEvent per frame.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/stream"
	"github.com/AleutianAI/AleutianGateway/services/llm"
)

// =============================================================================
// Service interfaces
// =============================================================================

// ChatService is the synchronous backend surface. It is satisfied by
// *dispatch.Dispatcher.
type ChatService interface {
	Chat(ctx context.Context, req datatypes.ChatRequest) (string, error)
	ListModels(ctx context.Context, cfg datatypes.GatewayConfig) ([]string, error)
	ModelExists(ctx context.Context, cfg datatypes.GatewayConfig, model string) (bool, error)
}

// StreamService is the asynchronous surface. It is satisfied by
// *stream.Hub.
type StreamService interface {
	StartChat(req datatypes.ChatRequest) (datatypes.StreamHandle, error)
	StartPull(req datatypes.PullRequest) (datatypes.StreamHandle, error)
	Subscribe(handle datatypes.StreamHandle, from int) (*stream.Subscription, error)
	Cancel(handle datatypes.StreamHandle) error
}

// DaemonService starts the local daemon. It is satisfied by
// *daemon.Supervisor.
type DaemonService interface {
	EnsureRunning(ctx context.Context, cfg datatypes.GatewayConfig) bool
}

// ConfigResolver fills a request's config from the server defaults.
type ConfigResolver func(cfg datatypes.GatewayConfig) datatypes.GatewayConfig

// =============================================================================
// Health
// =============================================================================

// HealthCheck answers {"status":"ok"}.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// =============================================================================
// Helpers
// =============================================================================

// respondError writes {"error": err} with a status derived from err:
// adapter failures are 502, unknown streams 404, anything else 400.
func respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, stream.ErrStreamNotFound):
		status = http.StatusNotFound
	case errors.Is(err, stream.ErrHubClosed):
		status = http.StatusServiceUnavailable
	default:
		if _, ok := llm.KindOf(err); ok {
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
