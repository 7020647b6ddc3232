// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the gateway.
//
// # Description
//
// Metrics cover the three places where the gateway does real work:
//   - Streams: started/finished by kind and outcome, active gauge, chunk and
//     progress event counters, duration histogram
//   - Daemon supervision: ensure outcomes, spawn attempts, model pre-warm
//   - Provider adapters: latency and classified errors
//   - Push transports: SSE/WebSocket disconnects and keepalives
//
// # Nil Safety
//
// Every Record method is a no-op on a nil *GatewayMetrics, so components
// can be built without metrics in tests.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "aleutian"

const gatewaySubsystem = "gateway"

// GatewayMetrics holds every Prometheus collector the gateway exposes.
type GatewayMetrics struct {
	// StreamsStartedTotal counts streams by kind (stream, pull).
	StreamsStartedTotal *prometheus.CounterVec

	// StreamsFinishedTotal counts terminal events.
	// Labels: kind, outcome (end, error, cancelled)
	StreamsFinishedTotal *prometheus.CounterVec

	// ActiveStreams tracks streams whose operation is still running.
	ActiveStreams *prometheus.GaugeVec

	// ChunksTotal counts chat chunk events emitted.
	ChunksTotal prometheus.Counter

	// ProgressEventsTotal counts pull progress events emitted.
	ProgressEventsTotal prometheus.Counter

	// StreamDurationSeconds measures handle creation to terminal event.
	StreamDurationSeconds *prometheus.HistogramVec

	// DaemonEnsureTotal counts ensure outcomes.
	// Labels: outcome (reachable, started, joined, timed_out)
	DaemonEnsureTotal *prometheus.CounterVec

	// DaemonSpawnsTotal counts background-serve launches.
	// Labels: result (ok, failed)
	DaemonSpawnsTotal *prometheus.CounterVec

	// ModelPrewarmTotal counts model-ensure results.
	// Labels: result (present, pulled, failed)
	ModelPrewarmTotal *prometheus.CounterVec

	// AdapterLatencySeconds measures one provider call including fallback.
	// Labels: provider, status (success, error)
	AdapterLatencySeconds *prometheus.HistogramVec

	// AdapterErrorsTotal counts classified adapter failures.
	// Labels: provider, kind
	AdapterErrorsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts subscribers that went away early.
	// Labels: transport (sse, ws)
	ClientDisconnectsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive frames written.
	// Labels: transport (sse, ws)
	KeepAlivesTotal *prometheus.CounterVec
}

// NewGatewayMetrics creates and registers all collectors with reg.
//
// # Inputs
//
//   - reg: Target registry. nil means prometheus.DefaultRegisterer.
//
// # Examples
//
//	metrics := observability.NewGatewayMetrics(nil)
//	hub := stream.NewHub(stream.WithMetrics(metrics))
//
// # Limitations
//
//   - Panics on duplicate registration with the same registry.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &GatewayMetrics{
		StreamsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "streams_started_total",
				Help:      "Total streams started by kind",
			},
			[]string{"kind"},
		),

		StreamsFinishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "streams_finished_total",
				Help:      "Total streams finished by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "active_streams",
				Help:      "Number of streams whose operation is still running",
			},
			[]string{"kind"},
		),

		ChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "chunks_total",
				Help:      "Total chat chunk events emitted",
			},
		),

		ProgressEventsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "progress_events_total",
				Help:      "Total model pull progress events emitted",
			},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Time from handle creation to terminal event in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"kind", "outcome"},
		),

		DaemonEnsureTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "daemon_ensure_total",
				Help:      "Total daemon ensure calls by outcome",
			},
			[]string{"outcome"},
		),

		DaemonSpawnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "daemon_spawns_total",
				Help:      "Total daemon background-serve launches by result",
			},
			[]string{"result"},
		),

		ModelPrewarmTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "model_prewarm_total",
				Help:      "Total model ensure calls by result",
			},
			[]string{"result"},
		),

		AdapterLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "adapter_latency_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0},
			},
			[]string{"provider", "status"},
		),

		AdapterErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "adapter_errors_total",
				Help:      "Total provider failures by provider and kind",
			},
			[]string{"provider", "kind"},
		),

		ClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total subscribers that disconnected before the terminal event",
			},
			[]string{"transport"},
		),

		KeepAlivesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive frames written",
			},
			[]string{"transport"},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Outcome labels a finished stream.
type Outcome string

const (
	OutcomeEnd       Outcome = "end"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// EnsureOutcome labels a daemon ensure call.
type EnsureOutcome string

const (
	EnsureReachable EnsureOutcome = "reachable"
	EnsureStarted   EnsureOutcome = "started"
	EnsureJoined    EnsureOutcome = "joined"
	EnsureTimedOut  EnsureOutcome = "timed_out"
)

// Transport labels a push transport.
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "ws"
)

// =============================================================================
// Helper Methods
// =============================================================================

// StreamStarted records a new stream of kind.
func (m *GatewayMetrics) StreamStarted(kind string) {
	if m == nil {
		return
	}
	m.StreamsStartedTotal.WithLabelValues(kind).Inc()
	m.ActiveStreams.WithLabelValues(kind).Inc()
}

// StreamFinished records the terminal event of a stream.
func (m *GatewayMetrics) StreamFinished(kind string, outcome Outcome, seconds float64) {
	if m == nil {
		return
	}
	m.StreamsFinishedTotal.WithLabelValues(kind, string(outcome)).Inc()
	m.ActiveStreams.WithLabelValues(kind).Dec()
	m.StreamDurationSeconds.WithLabelValues(kind, string(outcome)).Observe(seconds)
}

// RecordChunk counts one chat chunk event.
func (m *GatewayMetrics) RecordChunk() {
	if m == nil {
		return
	}
	m.ChunksTotal.Inc()
}

// RecordProgress counts one pull progress event.
func (m *GatewayMetrics) RecordProgress() {
	if m == nil {
		return
	}
	m.ProgressEventsTotal.Inc()
}

// RecordEnsure counts one daemon ensure outcome.
func (m *GatewayMetrics) RecordEnsure(outcome EnsureOutcome) {
	if m == nil {
		return
	}
	m.DaemonEnsureTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordSpawn counts one background-serve launch.
func (m *GatewayMetrics) RecordSpawn(ok bool) {
	if m == nil {
		return
	}
	m.DaemonSpawnsTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordPrewarm counts one model-ensure result.
func (m *GatewayMetrics) RecordPrewarm(result string) {
	if m == nil {
		return
	}
	m.ModelPrewarmTotal.WithLabelValues(result).Inc()
}

// RecordAdapterCall records a provider call. kind is empty on success.
func (m *GatewayMetrics) RecordAdapterCall(provider string, seconds float64, kind string) {
	if m == nil {
		return
	}
	status := "success"
	if kind != "" {
		status = "error"
		m.AdapterErrorsTotal.WithLabelValues(provider, kind).Inc()
	}
	m.AdapterLatencySeconds.WithLabelValues(provider, status).Observe(seconds)
}

// RecordClientDisconnect counts a subscriber that left early.
func (m *GatewayMetrics) RecordClientDisconnect(t Transport) {
	if m == nil {
		return
	}
	m.ClientDisconnectsTotal.WithLabelValues(string(t)).Inc()
}

// RecordKeepAlive counts one keepalive frame.
func (m *GatewayMetrics) RecordKeepAlive(t Transport) {
	if m == nil {
		return
	}
	m.KeepAlivesTotal.WithLabelValues(string(t)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
