// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"log/slog"
	"unicode/utf8"
)

// CheckpointName identifies one of the gateway's documented log points.
type CheckpointName string

const (
	CheckpointChatStart    CheckpointName = "chat-start"
	CheckpointChatEnd      CheckpointName = "chat-end"
	CheckpointChatError    CheckpointName = "chat-error"
	CheckpointModelCheck   CheckpointName = "model-check"
	CheckpointModelPull    CheckpointName = "model-pull"
	CheckpointDaemonEnsure CheckpointName = "daemon-ensure"
	CheckpointDaemonSpawn  CheckpointName = "daemon-spawn"
	CheckpointModelPrewarm CheckpointName = "model-prewarm"
	CheckpointStreamCancel CheckpointName = "stream-cancel"
	CheckpointConfigReload CheckpointName = "config-reload"
)

// Checkpoint returns the slog attribute tagging a record with name.
func Checkpoint(name CheckpointName) slog.Attr {
	return slog.String("checkpoint", string(name))
}

// Preview truncates s to at most max runes, appending "…" when cut.
// Used for logging user input without writing whole conversations.
func Preview(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}
