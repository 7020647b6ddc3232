// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package daemon keeps the local inference daemon reachable.
//
// The Supervisor probes the daemon's inventory endpoint, starts the daemon
// in the background when it is absent, and waits for it to answer. Only one
// start is ever in flight: concurrent callers join the running attempt and
// observe its result.
//
//	EnsureRunning
//	  │
//	  ├─ probe /api/tags ── any response ──► true
//	  │
//	  └─ singleflight(base URL)
//	        ├─ starting flag taken ──► poll passively ──► true/false
//	        └─ take flag ──► Launcher.Serve ──► poll ──► true
//	                                              └─ warm start ──► poll ──► true/false
//
// Supervisor failures never surface as errors. EnsureRunning and EnsureModel
// return a boolean; the reasons behind a false are logged and published on
// Diagnostics.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianGateway/pkg/logging"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
	"github.com/AleutianAI/AleutianGateway/services/llm"
)

var tracer = otel.Tracer("aleutian.gateway.daemon")

// =============================================================================
// Timings
// =============================================================================

const (
	// DefaultPollInterval is the delay between readiness probes.
	DefaultPollInterval = 900 * time.Millisecond

	// DefaultReadyTimeout bounds the wait after a background serve.
	DefaultReadyTimeout = 12 * time.Second

	// DefaultWarmTimeout bounds the wait after a warm start.
	DefaultWarmTimeout = 8 * time.Second

	// DefaultProbeTimeout bounds a single inventory request.
	DefaultProbeTimeout = 3 * time.Second

	diagnosticsBuffer = 32
)

// Timings groups the Supervisor's polling parameters.
type Timings struct {
	PollInterval time.Duration
	ReadyTimeout time.Duration
	WarmTimeout  time.Duration
	ProbeTimeout time.Duration
}

// DefaultTimings returns the production polling parameters.
func DefaultTimings() Timings {
	return Timings{
		PollInterval: DefaultPollInterval,
		ReadyTimeout: DefaultReadyTimeout,
		WarmTimeout:  DefaultWarmTimeout,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// =============================================================================
// Diagnostics
// =============================================================================

// Diagnostic describes a best-effort step that failed without failing the
// operation that ran it.
type Diagnostic struct {
	// Op is "spawn", "warm-start", "model-check" or "model-pull".
	Op      string
	BaseURL string
	Model   string
	Err     error
	At      time.Time
}

// String renders the diagnostic for logs and CLI output.
func (d Diagnostic) String() string {
	if d.Model != "" {
		return fmt.Sprintf("%s %s (%s): %v", d.Op, d.BaseURL, d.Model, d.Err)
	}
	return fmt.Sprintf("%s %s: %v", d.Op, d.BaseURL, d.Err)
}

// =============================================================================
// Options
// =============================================================================

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the platform launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithHTTPClient sets the client used for probes and model checks.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Supervisor) { s.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithMetrics sets the metrics sink. nil disables metrics.
func WithMetrics(m *observability.GatewayMetrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithTimings overrides the polling parameters. Zero fields keep their
// defaults.
func WithTimings(t Timings) Option {
	return func(s *Supervisor) {
		if t.PollInterval > 0 {
			s.timings.PollInterval = t.PollInterval
		}
		if t.ReadyTimeout > 0 {
			s.timings.ReadyTimeout = t.ReadyTimeout
		}
		if t.WarmTimeout > 0 {
			s.timings.WarmTimeout = t.WarmTimeout
		}
		if t.ProbeTimeout > 0 {
			s.timings.ProbeTimeout = t.ProbeTimeout
		}
	}
}

// =============================================================================
// Supervisor
// =============================================================================

// Supervisor starts the local daemon on demand.
//
// # Description
//
// The only state shared between calls is the "starting" flag, set with a
// compare-and-swap so that two callers can never both spawn the daemon.
// Calls for the same base URL are additionally collapsed by a
// singleflight.Group, so joiners wake when the leader finishes rather than
// running their own poll loop.
//
// # Thread Safety
//
// Supervisor is safe for concurrent use.
type Supervisor struct {
	launcher    Launcher
	httpClient  *http.Client
	logger      *logging.Logger
	metrics     *observability.GatewayMetrics
	timings     Timings
	group       singleflight.Group
	starting    atomic.Bool
	diagnostics chan Diagnostic
}

// NewSupervisor creates a Supervisor. Without WithLauncher it uses the
// platform launcher over real processes.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		httpClient:  http.DefaultClient,
		logger:      logging.Nop(),
		timings:     DefaultTimings(),
		diagnostics: make(chan Diagnostic, diagnosticsBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = NewPlatformLauncher(NewDefaultProcessManager())
	}
	return s
}

// Diagnostics returns the channel on which best-effort failures are
// published. Records are dropped when nobody drains it.
func (s *Supervisor) Diagnostics() <-chan Diagnostic {
	return s.diagnostics
}

// Starting reports whether a daemon start is in progress.
func (s *Supervisor) Starting() bool {
	return s.starting.Load()
}

// EnsureRunning makes the daemon at cfg.BaseURL reachable if it can.
//
// # Description
//
// A first probe succeeds on any HTTP response. Otherwise the caller either
// starts the daemon (Launcher.Serve, then poll) or, when another start is
// already underway, polls passively. Polls require a 2xx status. If the
// launcher supports a warm start and cfg.Model is set, one warm start and a
// shorter second poll follow a timed-out first poll.
//
// # Inputs
//
//   - ctx: Abandons the wait for this caller only. A start already
//     underway keeps running for the others.
//   - cfg: Supplies BaseURL, the executable and the warm-start model.
//
// # Outputs
//
//   - bool: true once the daemon answered.
func (s *Supervisor) EnsureRunning(ctx context.Context, cfg datatypes.GatewayConfig) bool {
	base := baseURL(cfg)
	ctx, span := tracer.Start(ctx, "daemon.EnsureRunning")
	defer span.End()
	span.SetAttributes(attribute.String("daemon.base_url", base))

	if s.probe(ctx, base, false) {
		s.logger.Debug("daemon reachable",
			logging.Checkpoint(logging.CheckpointDaemonEnsure),
			"base_url", base)
		s.metrics.RecordEnsure(observability.EnsureReachable)
		span.SetAttributes(attribute.String("daemon.outcome", string(observability.EnsureReachable)))
		return true
	}

	ch := s.group.DoChan(base, func() (any, error) {
		return s.start(context.WithoutCancel(ctx), cfg, base), nil
	})

	select {
	case res := <-ch:
		ready, _ := res.Val.(bool)
		span.SetAttributes(attribute.Bool("daemon.ready", ready), attribute.Bool("daemon.shared", res.Shared))
		return ready
	case <-ctx.Done():
		span.SetAttributes(attribute.Bool("daemon.abandoned", true))
		return false
	}
}

// start runs inside the singleflight group.
func (s *Supervisor) start(ctx context.Context, cfg datatypes.GatewayConfig, base string) bool {
	if !s.starting.CompareAndSwap(false, true) {
		ready := s.pollUntilReady(ctx, base, s.timings.ReadyTimeout)
		s.finishEnsure(base, ready, observability.EnsureJoined)
		return ready
	}
	defer s.starting.Store(false)

	exe := cfg.Executable()
	err := s.launcher.Serve(ctx, exe)
	s.metrics.RecordSpawn(err == nil)
	if err != nil {
		s.logger.Warn("failed to launch daemon",
			logging.Checkpoint(logging.CheckpointDaemonSpawn),
			"base_url", base, "exe", exe, "error", err)
		s.report(Diagnostic{Op: "spawn", BaseURL: base, Err: err})
	} else {
		s.logger.Info("daemon launched",
			logging.Checkpoint(logging.CheckpointDaemonSpawn),
			"base_url", base, "exe", exe)
	}

	if s.pollUntilReady(ctx, base, s.timings.ReadyTimeout) {
		s.finishEnsure(base, true, observability.EnsureStarted)
		return true
	}

	if s.launcher.SupportsWarmStart() && cfg.Model != "" {
		if err := s.launcher.WarmStart(ctx, exe, cfg.Model); err != nil {
			s.logger.Warn("warm start failed",
				logging.Checkpoint(logging.CheckpointDaemonSpawn),
				"base_url", base, "model", cfg.Model, "error", err)
			s.report(Diagnostic{Op: "warm-start", BaseURL: base, Model: cfg.Model, Err: err})
		} else {
			s.logger.Info("warm start issued",
				logging.Checkpoint(logging.CheckpointDaemonSpawn),
				"base_url", base, "model", cfg.Model)
		}
		if s.pollUntilReady(ctx, base, s.timings.WarmTimeout) {
			s.finishEnsure(base, true, observability.EnsureStarted)
			return true
		}
	}

	s.finishEnsure(base, false, observability.EnsureTimedOut)
	return false
}

func (s *Supervisor) finishEnsure(base string, ready bool, outcome observability.EnsureOutcome) {
	if !ready {
		outcome = observability.EnsureTimedOut
		s.logger.Warn("daemon did not become ready",
			logging.Checkpoint(logging.CheckpointDaemonEnsure),
			"base_url", base)
	} else {
		s.logger.Info("daemon ready",
			logging.Checkpoint(logging.CheckpointDaemonEnsure),
			"base_url", base, "outcome", string(outcome))
	}
	s.metrics.RecordEnsure(outcome)
}

// pollUntilReady probes every PollInterval until a 2xx answer or timeout.
func (s *Supervisor) pollUntilReady(ctx context.Context, base string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.timings.PollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if s.probe(ctx, base, true) {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// probe issues GET /api/tags. With requireSuccess false any response
// counts as reachable.
func (s *Supervisor) probe(ctx context.Context, base string, requireSuccess bool) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timings.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	if requireSuccess {
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	return true
}

// EnsureModel makes sure model is present in the daemon's inventory,
// pulling it through the executable when missing.
//
// # Description
//
// An empty model is a no-op. A pull is an optimistic pre-warm: its
// failures are logged and published on Diagnostics, never returned.
//
// # Outputs
//
//   - bool: true if the model was already present or the pull command
//     completed without error.
func (s *Supervisor) EnsureModel(ctx context.Context, cfg datatypes.GatewayConfig, model string) bool {
	if model == "" {
		return true
	}
	base := baseURL(cfg)
	ctx, span := tracer.Start(ctx, "daemon.EnsureModel")
	defer span.End()
	span.SetAttributes(attribute.String("daemon.base_url", base), attribute.String("llm.model", model))

	client := llm.NewOllamaClient(base, llm.WithHTTPClient(s.httpClient))
	present, err := client.HasModel(ctx, model)
	if err != nil {
		s.logger.Warn("model check failed",
			logging.Checkpoint(logging.CheckpointModelPrewarm),
			"base_url", base, "model", model, "error", err)
		s.report(Diagnostic{Op: "model-check", BaseURL: base, Model: model, Err: err})
	}
	if present {
		s.metrics.RecordPrewarm("present")
		return true
	}

	exe := cfg.Executable()
	s.logger.Info("pulling missing model",
		logging.Checkpoint(logging.CheckpointModelPrewarm),
		"base_url", base, "model", model, "exe", exe)
	if err := s.launcher.Pull(ctx, exe, model); err != nil {
		s.logger.Warn("model pull failed",
			logging.Checkpoint(logging.CheckpointModelPrewarm),
			"model", model, "error", err)
		s.report(Diagnostic{Op: "model-pull", BaseURL: base, Model: model, Err: err})
		s.metrics.RecordPrewarm("failed")
		return false
	}
	s.metrics.RecordPrewarm("pulled")
	return true
}

// report publishes d without blocking.
func (s *Supervisor) report(d Diagnostic) {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	select {
	case s.diagnostics <- d:
	default:
	}
}

func baseURL(cfg datatypes.GatewayConfig) string {
	if base := cfg.TrimmedBaseURL(); base != "" {
		return base
	}
	return datatypes.DefaultOllamaURL
}
