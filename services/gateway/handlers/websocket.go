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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
)

const wsWriteWait = 10 * time.Second

// The UI is served from a local webview whose origin varies by platform.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// HandleStreamSocket delivers a stream's events over a WebSocket, one
// StreamEvent JSON object per text message.
//
// GET /v1/streams/:id/ws[?from=<seq>]. The server closes the socket with a
// normal closure after the terminal event. Messages from the client are
// read and discarded; a read error means the client went away.
func HandleStreamSocket(svc StreamService, opts StreamOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, ok := subscribe(c, svc)
		if !ok {
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		go func() {
			defer cancel()
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		events := pump(ctx, sub)
		ticker := time.NewTicker(opts.keepAlive())
		defer ticker.Stop()

		for {
			select {
			case ev, open := <-events:
				if !open {
					if ctx.Err() != nil {
						opts.Metrics.RecordClientDisconnect(observability.TransportWebSocket)
					}
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := ws.WriteJSON(ev); err != nil {
					slog.Warn("Failed to write WebSocket JSON", "stream_id", string(ev.StreamID), "error", err)
					opts.Metrics.RecordClientDisconnect(observability.TransportWebSocket)
					return
				}
				if ev.Type.IsTerminal() {
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished"),
						time.Now().Add(wsWriteWait))
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					opts.Metrics.RecordClientDisconnect(observability.TransportWebSocket)
					return
				}
				opts.Metrics.RecordKeepAlive(observability.TransportWebSocket)
			case <-ctx.Done():
				opts.Metrics.RecordClientDisconnect(observability.TransportWebSocket)
				return
			}
		}
	}
}
