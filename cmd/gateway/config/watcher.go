// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianGateway/pkg/logging"
	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Defaults holds the live request defaults. Safe for concurrent use.
type Defaults struct {
	v atomic.Pointer[datatypes.GatewayConfig]
}

func NewDefaults(cfg datatypes.GatewayConfig) *Defaults {
	d := &Defaults{}
	d.Set(cfg)
	return d
}

// Get returns a copy of the current defaults.
func (d *Defaults) Get() datatypes.GatewayConfig {
	return *d.v.Load()
}

func (d *Defaults) Set(cfg datatypes.GatewayConfig) {
	d.v.Store(&cfg)
}

// Watcher reloads the defaults section when the config file changes.
//
// # Description
//
// The file's directory is watched rather than the file itself, because
// editors commonly save by writing a temp file and renaming it over the
// original. A reload that fails to parse or validate is logged and the
// previous defaults stay in effect. Only the defaults section is live;
// server, logging and telemetry changes need a restart.
type Watcher struct {
	path     string
	defaults *Defaults
	logger   *logging.Logger
	debounce time.Duration
	getenv   func(string) string
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	reloads  atomic.Int64
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, defaults *Defaults, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		defaults: defaults,
		logger:   logger.With(logging.Checkpoint(logging.CheckpointConfigReload), "path", path),
		debounce: DefaultDebounce,
		getenv:   os.Getenv,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the config directory until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	go w.loop(ctx)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// Reloads returns the number of successful reloads.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("config reload skipped", "error", err)
		return
	}
	cfg, err := Parse(w.path, data)
	if err != nil {
		w.logger.Warn("config reload rejected", "error", err)
		return
	}
	applyEnv(&cfg, w.getenv)
	if err := cfg.Defaults.Validate(); err != nil {
		w.logger.Warn("config reload rejected", "error", err)
		return
	}
	w.defaults.Set(cfg.Defaults)
	w.reloads.Add(1)
	w.logger.Info("defaults reloaded",
		"provider", string(cfg.Defaults.Provider),
		"base_url", cfg.Defaults.TrimmedBaseURL(),
		"model", cfg.Defaults.Model,
		"api_key_present", cfg.Defaults.APIKey != "")
}
