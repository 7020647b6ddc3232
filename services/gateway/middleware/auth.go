// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the gateway.
//
// # Authentication Flow
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Token from "Authorization: Bearer <token>" or ?access_token=
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► 401 {"error": "unauthorized"} or next handler
//
// The query parameter exists because browsers cannot set headers on
// EventSource or WebSocket requests.
//
// # Open Behavior
//
// With no token configured (OpenProvider) every request is accepted. This
// is the default for a gateway bound to localhost.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrUnauthorized is returned by an AuthProvider that rejects a token.
var ErrUnauthorized = errors.New("unauthorized")

// AuthProvider validates a bearer token.
type AuthProvider interface {
	// Validate returns nil for an accepted token and ErrUnauthorized (or any
	// other error) otherwise. token may be empty.
	Validate(ctx context.Context, token string) error
}

// OpenProvider accepts every request.
type OpenProvider struct{}

// Validate always succeeds.
func (OpenProvider) Validate(context.Context, string) error { return nil }

// StaticTokenProvider accepts exactly one shared token.
type StaticTokenProvider struct {
	token []byte
}

// NewTokenProvider returns OpenProvider for an empty token and a
// StaticTokenProvider otherwise.
func NewTokenProvider(token string) AuthProvider {
	token = strings.TrimSpace(token)
	if token == "" {
		return OpenProvider{}
	}
	return &StaticTokenProvider{token: []byte(token)}
}

// Validate compares in constant time.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) error {
	if subtle.ConstantTimeCompare(p.token, []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// AuthMiddleware rejects requests whose token provider does not accept.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AuthMiddleware(middleware.NewTokenProvider(cfg.Server.Token)))
func AuthMiddleware(provider AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := provider.Validate(c.Request.Context(), extractToken(c)); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		c.Next()
	}
}

// extractToken reads "Authorization: Bearer <token>" (scheme is
// case-insensitive), falling back to the access_token query parameter.
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("access_token")
}
