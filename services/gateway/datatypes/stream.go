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
	"sync/atomic"
	"time"
)

// =============================================================================
// Stream handles
// =============================================================================

// StreamKind distinguishes the two kinds of asynchronous operations.
type StreamKind string

const (
	StreamKindChat StreamKind = "stream"
	StreamKindPull StreamKind = "pull"
)

// StreamHandle is the opaque, process-unique name of one in-flight
// asynchronous operation, e.g. "stream-1729350000123".
type StreamHandle string

// lastHandleStamp is the millisecond stamp of the most recently issued
// handle. Stamps are strictly increasing within the process.
var lastHandleStamp atomic.Int64

// NewStreamHandle returns a fresh handle for kind. The value is derived from
// the wall clock in milliseconds; when two handles are requested within the
// same millisecond, or the clock steps backwards, the stamp is bumped past
// the previous one so no handle is ever reused.
func NewStreamHandle(kind StreamKind) StreamHandle {
	now := time.Now().UnixMilli()
	for {
		last := lastHandleStamp.Load()
		stamp := now
		if stamp <= last {
			stamp = last + 1
		}
		if lastHandleStamp.CompareAndSwap(last, stamp) {
			return StreamHandle(fmt.Sprintf("%s-%d", kind, stamp))
		}
	}
}

// =============================================================================
// Progress
// =============================================================================

// ProgressEvent is one parsed record of a model download.
//
// Message is set instead of the numeric fields when the daemon sent a line
// that was not valid JSON; the raw text is forwarded rather than dropped.
type ProgressEvent struct {
	Status    string  `json:"status"`
	Completed int64   `json:"completed"`
	Total     int64   `json:"total"`
	Percent   float64 `json:"percent"`
	Digest    string  `json:"digest,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// NewProgressEvent builds a ProgressEvent with the derived percentage.
func NewProgressEvent(status string, completed, total int64) ProgressEvent {
	return ProgressEvent{
		Status:    status,
		Completed: completed,
		Total:     total,
		Percent:   ProgressPercent(completed, total),
	}
}

// RawProgress wraps an unparseable progress line.
func RawProgress(line string) ProgressEvent {
	return ProgressEvent{Message: line}
}

// ProgressPercent returns completed/total*100 clamped to [0, 100], or 0
// when total is unknown.
func ProgressPercent(completed, total int64) float64 {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return float64(completed) * 100 / float64(total)
}

// =============================================================================
// Stream events
// =============================================================================

// EventType names a framed stream event.
type EventType string

const (
	EventChunk    EventType = "chunk"
	EventProgress EventType = "progress"
	EventEnd      EventType = "end"
	EventError    EventType = "error"
)

// IsTerminal reports whether t ends a stream.
func (t EventType) IsTerminal() bool {
	return t == EventEnd || t == EventError
}

// StreamEvent is one UI-visible event for a handle.
//
// # Fields
//
//   - ID: UUID assigned on publish, used as the SSE id.
//   - StreamID: The handle the event belongs to.
//   - Seq: 0-based position in the handle's sequence.
//   - Type: chunk, progress, end or error.
//   - Text: Batch text (chunk only).
//   - Progress: Parsed progress (progress only).
//   - Error: Human-readable failure description (error only).
//   - CreatedAt: Unix milliseconds.
type StreamEvent struct {
	ID        string         `json:"id"`
	StreamID  StreamHandle   `json:"stream_id"`
	Seq       int            `json:"seq"`
	Type      EventType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	Progress  *ProgressEvent `json:"progress,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt int64          `json:"created_at"`
}
