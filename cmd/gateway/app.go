// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianGateway/cmd/gateway/config"
	"github.com/AleutianAI/AleutianGateway/pkg/logging"
	"github.com/AleutianAI/AleutianGateway/services/daemon"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/dispatch"
	"github.com/AleutianAI/AleutianGateway/services/gateway/handlers"
	"github.com/AleutianAI/AleutianGateway/services/gateway/middleware"
	"github.com/AleutianAI/AleutianGateway/services/gateway/observability"
	"github.com/AleutianAI/AleutianGateway/services/gateway/routes"
	"github.com/AleutianAI/AleutianGateway/services/gateway/stream"
	"github.com/AleutianAI/AleutianGateway/services/gateway/telemetry"
)

// app is the wired gateway shared by serve and the one-shot commands.
type app struct {
	cfg        config.GatewayFileConfig
	defaults   *config.Defaults
	logger     *logging.Logger
	registry   *prometheus.Registry
	metrics    *observability.GatewayMetrics
	supervisor *daemon.Supervisor
	dispatcher *dispatch.Dispatcher
	hub        *stream.Hub
}

type appOption func(*appDeps)

type appDeps struct {
	launcher daemon.Launcher
	timings  daemon.Timings
}

func withLauncher(l daemon.Launcher) appOption {
	return func(d *appDeps) { d.launcher = l }
}

func withTimings(t daemon.Timings) appOption {
	return func(d *appDeps) { d.timings = t }
}

func newApp(cfg config.GatewayFileConfig, logger *logging.Logger, opts ...appOption) *app {
	var deps appDeps
	for _, opt := range opts {
		opt(&deps)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	httpClient := &http.Client{Timeout: cfg.Server.HTTPTimeout}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewGatewayMetrics(registry)
	defaults := config.NewDefaults(cfg.Defaults)

	supervisorOpts := []daemon.Option{
		daemon.WithHTTPClient(httpClient),
		daemon.WithLogger(logger),
		daemon.WithMetrics(metrics),
		daemon.WithTimings(deps.timings),
	}
	if deps.launcher != nil {
		supervisorOpts = append(supervisorOpts, daemon.WithLauncher(deps.launcher))
	}
	supervisor := daemon.NewSupervisor(supervisorOpts...)

	dispatcher := dispatch.New(
		dispatch.WithHTTPClient(httpClient),
		dispatch.WithModelEnsurer(supervisor),
		dispatch.WithDefaults(defaults.Get),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
	)

	hub := stream.NewHub(dispatcher,
		stream.WithPuller(stream.OllamaPuller(httpClient)),
		stream.WithLogger(logger),
		stream.WithMetrics(metrics),
		stream.WithRetention(cfg.Server.Retention),
		stream.WithMaxConcurrent(cfg.Server.MaxConcurrent),
	)

	return &app{
		cfg:        cfg,
		defaults:   defaults,
		logger:     logger,
		registry:   registry,
		metrics:    metrics,
		supervisor: supervisor,
		dispatcher: dispatcher,
		hub:        hub,
	}
}

// router builds the HTTP surface. OTel instrumentation is attached when
// instrument is true; the global providers decide where the data goes.
func (a *app) router(instrument bool) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	if instrument {
		router.Use(otelgin.Middleware(a.cfg.Telemetry.ServiceName))
		httpMetrics, err := telemetry.NewHTTPMetrics(otel.Meter("aleutian.gateway.http"))
		if err != nil {
			return nil, err
		}
		router.Use(httpMetrics.Middleware())
	}

	routes.SetupRoutes(router, routes.Deps{
		Chat:     a.dispatcher,
		Streams:  a.hub,
		Daemon:   a.supervisor,
		Resolve:  a.resolve,
		Gatherer: a.registry,
		Auth:     middleware.NewTokenProvider(a.cfg.Server.Token),
		Stream: handlers.StreamOptions{
			KeepAlive: a.cfg.Server.KeepAlive,
			Metrics:   a.metrics,
		},
	})
	return router, nil
}

func (a *app) resolve(cfg datatypes.GatewayConfig) datatypes.GatewayConfig {
	return a.dispatcher.Resolve(cfg)
}

// drainDiagnostics logs supervisor diagnostics until ctx ends.
func (a *app) drainDiagnostics(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-a.supervisor.Diagnostics():
			a.logger.Debug("daemon diagnostic", "diagnostic", d.String())
		}
	}
}

func (a *app) close() {
	a.hub.Close()
}
