// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"strings"
)

// Role is a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation. Order is significant and is
// preserved end to end.
type ChatMessage struct {
	Role    Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the body of both the streamed and direct chat endpoints.
//
// Think is a pointer so the config's DefaultThink can apply when the UI
// omits the field.
type ChatRequest struct {
	Config   GatewayConfig `json:"config"`
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model    string        `json:"model"`
	Think    *bool         `json:"think,omitempty"`
}

// Validate checks the request and its embedded config.
func (r *ChatRequest) Validate() error {
	if err := r.Config.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	return nil
}

// ResolvedModel returns Model, falling back to Config.Model.
func (r *ChatRequest) ResolvedModel() string {
	if r.Model != "" {
		return r.Model
	}
	return r.Config.Model
}

// ResolvedThink returns Think, falling back to Config.DefaultThink, then false.
func (r *ChatRequest) ResolvedThink() bool {
	if r.Think != nil {
		return *r.Think
	}
	if r.Config.DefaultThink != nil {
		return *r.Config.DefaultThink
	}
	return false
}

// LastUserContent returns the content of the most recent user message, or "".
func LastUserContent(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// FlattenMessages renders messages as "role: content" lines joined by "\n".
// Used for the plain-completion fallback.
func FlattenMessages(messages []ChatMessage) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = string(m.Role) + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// TrimHistory keeps every system message and the last max non-system
// messages, in their original order. max <= 0 returns messages unchanged.
func TrimHistory(messages []ChatMessage, max int) []ChatMessage {
	if max <= 0 {
		return messages
	}
	nonSystem := 0
	for _, m := range messages {
		if m.Role != RoleSystem {
			nonSystem++
		}
	}
	if nonSystem <= max {
		return messages
	}
	skip := nonSystem - max
	out := make([]ChatMessage, 0, len(messages)-skip)
	for _, m := range messages {
		if m.Role != RoleSystem && skip > 0 {
			skip--
			continue
		}
		out = append(out, m)
	}
	return out
}

// ModelExistsRequest is the body of the model existence check.
type ModelExistsRequest struct {
	Config GatewayConfig `json:"config"`
	Model  string        `json:"model"`
}

// PullRequest is the body of the model pull endpoint.
type PullRequest struct {
	BaseURL string `json:"baseUrl" validate:"required,url"`
	Name    string `json:"name" validate:"required"`
}

// Validate checks the pull request.
func (r *PullRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid pull request: %w", err)
	}
	return nil
}
