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
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGateway/cmd/gateway/config"
	"github.com/AleutianAI/AleutianGateway/services/gateway/telemetry"
)

const shutdownTimeout = 10 * time.Second

func runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	ln, err := net.Listen("tcp", gatewayConfig.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", gatewayConfig.Server.Addr, err)
	}
	return serve(ctx, ln, gatewayConfig, path)
}

// serve runs the gateway on ln until ctx ends, then shuts down gracefully:
// the listener stops, running streams are cancelled, and telemetry is
// flushed.
func serve(ctx context.Context, ln net.Listener, cfg config.GatewayFileConfig, path string) error {
	gin.SetMode(gin.ReleaseMode)

	a := newApp(cfg, logger)
	defer a.close()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, a.registry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	router, err := a.router(true)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	if path != "" {
		watcher, err := config.NewWatcher(path, a.defaults, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
			_ = watcher.Stop()
		} else {
			defer watcher.Stop()
		}
	}

	go a.drainDiagnostics(ctx)

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			"addr", ln.Addr().String(),
			"auth", cfg.Server.Token != "",
			"default_provider", string(cfg.Defaults.Provider),
			"default_base_url", cfg.Defaults.TrimmedBaseURL())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
