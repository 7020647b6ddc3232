// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianGateway/services/gateway/handlers"
	"github.com/AleutianAI/AleutianGateway/services/gateway/middleware"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Chat    handlers.ChatService
	Streams handlers.StreamService
	Daemon  handlers.DaemonService

	// Resolve fills request configs from the server defaults. May be nil.
	Resolve handlers.ConfigResolver

	// Gatherer backs /metrics. nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Auth guards /v1. nil means every request is accepted.
	Auth middleware.AuthProvider

	Stream handlers.StreamOptions
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	auth := deps.Auth
	if auth == nil {
		auth = middleware.OpenProvider{}
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(auth))
	{
		v1.POST("/chat", handlers.HandleDirectChat(deps.Chat))
		v1.POST("/chat/stream", handlers.HandleChatStream(deps.Streams))
		v1.POST("/daemon/ensure", handlers.HandleEnsureDaemon(deps.Daemon, deps.Resolve))

		models := v1.Group("/models")
		{
			models.POST("/list", handlers.HandleListModels(deps.Chat))
			models.POST("/exists", handlers.HandleModelExists(deps.Chat))
			models.POST("/pull", handlers.HandleModelPull(deps.Streams, deps.Resolve))
		}

		streams := v1.Group("/streams")
		{
			streams.GET("/:id/events", handlers.HandleStreamEvents(deps.Streams, deps.Stream))
			streams.GET("/:id/ws", handlers.HandleStreamSocket(deps.Streams, deps.Stream))
			streams.DELETE("/:id", handlers.HandleCancelStream(deps.Streams))
		}
	}
}
