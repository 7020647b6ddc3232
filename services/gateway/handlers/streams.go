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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
	"github.com/AleutianAI/AleutianGateway/services/gateway/stream"
)

// DefaultKeepAlive is the idle interval between keepalive frames.
const DefaultKeepAlive = 15 * time.Second

// StreamOptions configures the push transports.
type StreamOptions struct {
	// KeepAlive is the idle interval between keepalive frames.
	// Zero means DefaultKeepAlive.
	KeepAlive time.Duration

	// Metrics records disconnects and keepalives. May be nil.
	Metrics *observability.GatewayMetrics
}

func (o StreamOptions) keepAlive() time.Duration {
	if o.KeepAlive > 0 {
		return o.KeepAlive
	}
	return DefaultKeepAlive
}

// HandleStreamEvents delivers a stream's events as Server-Sent Events.
//
// # Description
//
// GET /v1/streams/:id/events[?from=<seq>]. Events are replayed from
// sequence number from (default 0) and then followed live. The response
// ends after the terminal event. A client that goes away first is counted
// as a disconnect; the stream itself keeps running.
func HandleStreamEvents(svc StreamService, opts StreamOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, ok := subscribe(c, svc)
		if !ok {
			return
		}

		SetSSEHeaders(c.Writer)
		c.Status(http.StatusOK)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			slog.Error("SSE not supported by response writer", "error", err)
			return
		}
		c.Writer.Flush()

		ctx := c.Request.Context()
		events := pump(ctx, sub)
		ticker := time.NewTicker(opts.keepAlive())
		defer ticker.Stop()

		for {
			select {
			case ev, open := <-events:
				if !open {
					if ctx.Err() != nil {
						opts.Metrics.RecordClientDisconnect(observability.TransportSSE)
					}
					return
				}
				if err := writer.WriteEvent(ev); err != nil {
					slog.Debug("SSE write failed", "stream_id", string(ev.StreamID), "error", err)
					opts.Metrics.RecordClientDisconnect(observability.TransportSSE)
					return
				}
				if ev.Type.IsTerminal() {
					return
				}
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					opts.Metrics.RecordClientDisconnect(observability.TransportSSE)
					return
				}
				opts.Metrics.RecordKeepAlive(observability.TransportSSE)
			case <-ctx.Done():
				opts.Metrics.RecordClientDisconnect(observability.TransportSSE)
				return
			}
		}
	}
}

// HandleCancelStream cancels a running stream and answers 204.
func HandleCancelStream(svc StreamService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Cancel(datatypes.StreamHandle(c.Param("id"))); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// subscribe resolves :id and ?from. On failure it has already answered.
func subscribe(c *gin.Context, svc StreamService) (*stream.Subscription, bool) {
	from := 0
	if raw := c.Query("from"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "from must be a non-negative integer")
			return nil, false
		}
		from = n
	}
	sub, err := svc.Subscribe(datatypes.StreamHandle(c.Param("id")), from)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sub, true
}

// pump moves a subscription onto a channel so a transport can select on it
// alongside its keepalive ticker. The channel closes after the terminal
// event or when ctx ends.
func pump(ctx context.Context, sub *stream.Subscription) <-chan datatypes.StreamEvent {
	out := make(chan datatypes.StreamEvent)
	go func() {
		defer close(out)
		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
