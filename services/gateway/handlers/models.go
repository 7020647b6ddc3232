// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

// HandleListModels answers the model names of the posted config's backend
// as a JSON array.
func HandleListModels(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg datatypes.GatewayConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}

		models, err := svc.ListModels(c.Request.Context(), cfg)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models)
	}
}

// HandleModelExists answers {"exists": bool}.
func HandleModelExists(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ModelExistsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}

		exists, err := svc.ModelExists(c.Request.Context(), req.Config, req.Model)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"exists": exists})
	}
}

// HandleModelPull starts a background download on the local daemon and
// answers {"stream_id": "pull-..."}.
//
// An empty baseUrl falls back to the server's default daemon URL.
func HandleModelPull(svc StreamService, resolve ConfigResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.PullRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		if req.BaseURL == "" && resolve != nil {
			req.BaseURL = resolve(datatypes.GatewayConfig{}).TrimmedBaseURL()
		}

		handle, err := svc.StartPull(req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"stream_id": handle})
	}
}

// HandleEnsureDaemon makes the posted config's daemon reachable and answers
// {"ready": bool}. A false answer is a normal outcome, not an error.
func HandleEnsureDaemon(svc DaemonService, resolve ConfigResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg datatypes.GatewayConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		if resolve != nil {
			cfg = resolve(cfg)
		}
		c.JSON(http.StatusOK, gin.H{"ready": svc.EnsureRunning(c.Request.Context(), cfg)})
	}
}
