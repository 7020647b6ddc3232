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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

// HandleDirectChat runs one chat turn and answers {"content": "..."}.
func HandleDirectChat(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}

		content, err := svc.Chat(c.Request.Context(), req)
		if err != nil {
			slog.Warn("Direct chat failed", "provider", string(req.Config.Provider), "error", err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"content": content})
	}
}

// HandleChatStream starts a background chat and answers
// {"stream_id": "stream-..."} before the chat completes.
func HandleChatStream(svc StreamService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}

		handle, err := svc.StartChat(req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"stream_id": handle})
	}
}
