// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream runs chats and model pulls in the background and turns
// their results into ordered, handle-tagged events.
//
// StartChat and StartPull validate their request, return a fresh handle
// at once, and run the operation on a bounded pool. Every event of a handle
// is kept in an append-only log, so a subscriber that arrives late still
// observes the complete sequence from the first event:
//
//	chat: chunk* (end | error)
//	pull: progress* (end | error)
//
// Exactly one terminal event is published per handle; nothing follows it.
// The log is dropped a retention period after the terminal event.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/AleutianGateway/pkg/logging"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
	"github.com/AleutianAI/AleutianGateway/services/llm"
)

const (
	// DefaultRetention is how long a finished stream stays subscribable.
	DefaultRetention = 5 * time.Minute

	// DefaultMaxConcurrent bounds operations running at once.
	DefaultMaxConcurrent = 16

	// inputPreviewRunes bounds the user input written to chat-start.
	inputPreviewRunes = 200

	// progressLogStep is the percentage change that triggers a progress log.
	progressLogStep = 10.0
)

var (
	// ErrStreamNotFound is returned for unknown or expired handles.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrCancelled is the error text published when a stream is cancelled.
	ErrCancelled = errors.New("stream cancelled")

	// ErrHubClosed is returned by Start* after Close.
	ErrHubClosed = errors.New("stream hub closed")
)

// Chatter runs one chat turn. It is satisfied by *dispatch.Dispatcher.
type Chatter interface {
	// Prepare resolves and validates req. It must not block on I/O.
	Prepare(req *datatypes.ChatRequest) error
	Chat(ctx context.Context, req datatypes.ChatRequest) (string, error)
}

// PullFunc downloads one model, reporting each progress record.
type PullFunc func(ctx context.Context, req datatypes.PullRequest, progress llm.PullProgressFunc) error

// OllamaPuller returns a PullFunc backed by llm.OllamaClient.PullModel.
func OllamaPuller(httpClient *http.Client) PullFunc {
	return func(ctx context.Context, req datatypes.PullRequest, progress llm.PullProgressFunc) error {
		client := llm.NewOllamaClient(req.BaseURL, llm.WithHTTPClient(httpClient))
		return client.PullModel(ctx, req.Name, progress)
	}
}

// =============================================================================
// Options
// =============================================================================

// Option configures a Hub.
type Option func(*Hub)

// WithPuller replaces the default pull implementation.
func WithPuller(p PullFunc) Option {
	return func(h *Hub) { h.puller = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.GatewayMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithRetention sets how long finished streams remain subscribable.
func WithRetention(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.retention = d
		}
	}
}

// WithMaxConcurrent bounds the number of operations running at once.
// Further operations queue until a slot frees.
func WithMaxConcurrent(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxConcurrent = n
		}
	}
}

// =============================================================================
// Hub
// =============================================================================

// Hub owns every live stream.
//
// # Thread Safety
//
// Hub is safe for concurrent use. Each stream's log has its own lock;
// operations on different handles never contend beyond the registry map.
type Hub struct {
	chatter       Chatter
	puller        PullFunc
	logger        *logging.Logger
	metrics       *observability.GatewayMetrics
	retention     time.Duration
	maxConcurrent int
	sem           *semaphore.Weighted

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	stream map[datatypes.StreamHandle]*stream
}

// NewHub creates a Hub that dispatches chats through chatter.
func NewHub(chatter Chatter, opts ...Option) *Hub {
	h := &Hub{
		chatter:       chatter,
		puller:        OllamaPuller(nil),
		logger:        logging.Nop(),
		retention:     DefaultRetention,
		maxConcurrent: DefaultMaxConcurrent,
		stream:        make(map[datatypes.StreamHandle]*stream),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.sem = semaphore.NewWeighted(int64(h.maxConcurrent))
	h.ctx, h.stop = context.WithCancel(context.Background())
	return h
}

// StartChat validates req and runs the chat in the background.
//
// # Outputs
//
//   - datatypes.StreamHandle: "stream-<millis>", valid immediately.
//   - error: Validation failure; no handle is created.
func (h *Hub) StartChat(req datatypes.ChatRequest) (datatypes.StreamHandle, error) {
	if err := h.chatter.Prepare(&req); err != nil {
		return "", err
	}
	s, err := h.register(datatypes.StreamKindChat)
	if err != nil {
		return "", err
	}

	h.logger.Info("chat started",
		logging.Checkpoint(logging.CheckpointChatStart),
		"id", string(s.handle),
		"model", req.ResolvedModel(),
		"think", req.ResolvedThink(),
		"input", logging.Preview(datatypes.LastUserContent(req.Messages), inputPreviewRunes))

	h.launch(s, func(ctx context.Context) {
		text, err := h.chatter.Chat(ctx, req)
		if err != nil {
			h.fail(ctx, s, err)
			return
		}
		for _, piece := range Batch(text, ChunkSize) {
			if ctx.Err() != nil {
				h.fail(ctx, s, ctx.Err())
				return
			}
			if !s.publish(datatypes.StreamEvent{Type: datatypes.EventChunk, Text: piece}) {
				return
			}
			h.metrics.RecordChunk()
		}
		if h.finish(s, datatypes.StreamEvent{Type: datatypes.EventEnd}, observability.OutcomeEnd) {
			h.logger.Info("chat finished",
				logging.Checkpoint(logging.CheckpointChatEnd),
				"id", string(s.handle),
				"output_len", len(text))
		}
	})
	return s.handle, nil
}

// StartPull validates req and runs the model download in the background.
//
// # Outputs
//
//   - datatypes.StreamHandle: "pull-<millis>", valid immediately.
//   - error: Validation failure; no handle is created.
func (h *Hub) StartPull(req datatypes.PullRequest) (datatypes.StreamHandle, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	s, err := h.register(datatypes.StreamKindPull)
	if err != nil {
		return "", err
	}

	log := h.logger.With(
		logging.Checkpoint(logging.CheckpointModelPull),
		"model", req.Name,
		"pull_id", string(s.handle))
	log.Info("starting download", "base_url", req.BaseURL)

	h.launch(s, func(ctx context.Context) {
		lastPercent := -1.0
		established := false
		err := h.puller(ctx, req, func(ev datatypes.ProgressEvent) {
			if !established {
				established = true
				log.Info("stream established")
			}
			if ev.Message != "" {
				log.Info("status", "message", ev.Message)
			} else if math.Abs(ev.Percent-lastPercent) >= progressLogStep || lastPercent < 0 || ev.Status != "" {
				log.Info("progress",
					"status", ev.Status,
					"percent", fmt.Sprintf("%.1f", ev.Percent),
					"completed", ev.Completed,
					"total", ev.Total)
				lastPercent = ev.Percent
			}
			progress := ev
			if s.publish(datatypes.StreamEvent{Type: datatypes.EventProgress, Progress: &progress}) {
				h.metrics.RecordProgress()
			}
		})
		if err != nil {
			log.Warn("stream error", "error", err)
			h.fail(ctx, s, err)
			return
		}
		if h.finish(s, datatypes.StreamEvent{Type: datatypes.EventEnd}, observability.OutcomeEnd) {
			log.Info("download completed successfully")
		}
	})
	return s.handle, nil
}

// Subscribe returns a cursor over handle's events starting at sequence
// number from. 0 replays the whole stream.
func (h *Hub) Subscribe(handle datatypes.StreamHandle, from int) (*Subscription, error) {
	s, ok := h.lookup(handle)
	if !ok {
		return nil, ErrStreamNotFound
	}
	if from < 0 {
		from = 0
	}
	return &Subscription{stream: s, next: from}, nil
}

// Events is Subscribe delivered over a channel. The channel is closed after
// the terminal event or when ctx ends.
func (h *Hub) Events(ctx context.Context, handle datatypes.StreamHandle) (<-chan datatypes.StreamEvent, error) {
	sub, err := h.Subscribe(handle, 0)
	if err != nil {
		return nil, err
	}
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
	return out, nil
}

// Cancel stops the operation behind handle. The stream ends with an error
// event reading "stream cancelled". Cancelling a finished stream is a
// no-op.
func (h *Hub) Cancel(handle datatypes.StreamHandle) error {
	s, ok := h.lookup(handle)
	if !ok {
		return ErrStreamNotFound
	}
	if s.isDone() {
		return nil
	}
	h.logger.Info("stream cancelled",
		logging.Checkpoint(logging.CheckpointStreamCancel),
		"id", string(handle))
	s.cancel()
	return nil
}

// Active returns the number of streams that have not yet finished.
func (h *Hub) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.stream {
		if !s.isDone() {
			n++
		}
	}
	return n
}

// Close cancels every running operation and waits for them to publish
// their terminal events.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.stop()
	h.wg.Wait()
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (h *Hub) register(kind datatypes.StreamKind) (*stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	ctx, cancel := context.WithCancel(h.ctx)
	s := newStream(ctx, cancel, datatypes.NewStreamHandle(kind), kind)
	h.stream[s.handle] = s
	h.metrics.StreamStarted(string(kind))
	return s, nil
}

func (h *Hub) lookup(handle datatypes.StreamHandle) (*stream, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.stream[handle]
	return s, ok
}

func (h *Hub) forget(handle datatypes.StreamHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.stream, handle)
}

// launch runs op on the pool. A stream cancelled while queued ends without
// ever running op.
func (h *Hub) launch(s *stream, op func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer s.cancel()
		if err := h.sem.Acquire(s.ctx, 1); err != nil {
			h.fail(s.ctx, s, err)
			return
		}
		defer h.sem.Release(1)
		op(s.ctx)
	}()
}

// fail publishes the terminal error event for err.
func (h *Hub) fail(ctx context.Context, s *stream, err error) {
	outcome := observability.OutcomeError
	if ctx.Err() != nil {
		outcome = observability.OutcomeCancelled
		err = ErrCancelled
	}
	if !h.finish(s, datatypes.StreamEvent{Type: datatypes.EventError, Error: err.Error()}, outcome) {
		return
	}
	if s.kind == datatypes.StreamKindChat {
		h.logger.Warn("chat failed",
			logging.Checkpoint(logging.CheckpointChatError),
			"id", string(s.handle),
			"error", err)
	}
}

// finish publishes the terminal event and schedules the log for removal.
// It returns false if the stream had already finished.
func (h *Hub) finish(s *stream, ev datatypes.StreamEvent, outcome observability.Outcome) bool {
	if !s.publish(ev) {
		return false
	}
	h.metrics.StreamFinished(string(s.kind), outcome, time.Since(s.started).Seconds())
	time.AfterFunc(h.retention, func() { h.forget(s.handle) })
	return true
}

// =============================================================================
// Stream log
// =============================================================================

type stream struct {
	handle  datatypes.StreamHandle
	kind    datatypes.StreamKind
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	events []datatypes.StreamEvent
	done   bool
	wake   chan struct{}
}

func newStream(ctx context.Context, cancel context.CancelFunc, handle datatypes.StreamHandle, kind datatypes.StreamKind) *stream {
	return &stream{
		handle:  handle,
		kind:    kind,
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}),
	}
}

// publish stamps ev and appends it. It returns false once a terminal event
// has been appended.
func (s *stream) publish(ev datatypes.StreamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	ev.ID = uuid.NewString()
	ev.StreamID = s.handle
	ev.Seq = len(s.events)
	ev.CreatedAt = time.Now().UnixMilli()
	s.events = append(s.events, ev)
	if ev.Type.IsTerminal() {
		s.done = true
	}
	close(s.wake)
	s.wake = make(chan struct{})
	return true
}

func (s *stream) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// at returns event i, or a channel that is closed when the log grows.
func (s *stream) at(i int) (datatypes.StreamEvent, bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.events) {
		return s.events[i], true, nil
	}
	if s.done {
		return datatypes.StreamEvent{}, false, nil
	}
	return datatypes.StreamEvent{}, false, s.wake
}

// =============================================================================
// Subscription
// =============================================================================

// Subscription reads one stream's events in order. It is not safe for
// concurrent use; give each reader its own.
type Subscription struct {
	stream *stream
	next   int
}

// Next blocks until the next event is available.
//
// # Outputs
//
//   - datatypes.StreamEvent: The next event in sequence.
//   - error: io.EOF after the terminal event was returned, or ctx.Err().
func (sub *Subscription) Next(ctx context.Context) (datatypes.StreamEvent, error) {
	for {
		ev, ok, wake := sub.stream.at(sub.next)
		if ok {
			sub.next++
			return ev, nil
		}
		if wake == nil {
			return datatypes.StreamEvent{}, io.EOF
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return datatypes.StreamEvent{}, ctx.Err()
		}
	}
}
