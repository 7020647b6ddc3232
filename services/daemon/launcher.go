// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package daemon

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// Launcher is the platform capability the Supervisor needs from the daemon
// executable. The supervision logic never branches on the platform; it only
// receives a different Launcher.
type Launcher interface {
	// Serve starts "<exe> serve" in the background. Fire-and-forget: the
	// call returns once the process is launched, not when it is ready.
	Serve(ctx context.Context, exe string) error

	// Pull runs "<exe> pull <model>" and waits for it to finish.
	Pull(ctx context.Context, exe, model string) error

	// SupportsWarmStart reports whether WarmStart is meaningful here.
	SupportsWarmStart() bool

	// WarmStart runs the model once in the background, which initializes
	// the inference engine as a side effect.
	WarmStart(ctx context.Context, exe, model string) error
}

// -----------------------------------------------------------------------------
// DirectLauncher
// -----------------------------------------------------------------------------

// DirectLauncher invokes the executable directly. It is the launcher for
// platforms where "serve" can simply run as a detached child.
type DirectLauncher struct {
	pm ProcessManager
}

// NewDirectLauncher creates a DirectLauncher over pm.
func NewDirectLauncher(pm ProcessManager) *DirectLauncher {
	return &DirectLauncher{pm: pm}
}

// Serve starts "<exe> serve" detached.
func (l *DirectLauncher) Serve(ctx context.Context, exe string) error {
	_, err := l.pm.Start(ctx, exe, "serve")
	return err
}

// Pull runs "<exe> pull <model>" to completion.
func (l *DirectLauncher) Pull(ctx context.Context, exe, model string) error {
	_, err := l.pm.Run(ctx, exe, "pull", model)
	return err
}

// SupportsWarmStart returns false.
func (l *DirectLauncher) SupportsWarmStart() bool { return false }

// WarmStart is unsupported.
func (l *DirectLauncher) WarmStart(context.Context, string, string) error {
	return fmt.Errorf("warm start is not supported by the direct launcher")
}

// -----------------------------------------------------------------------------
// ShellLauncher
// -----------------------------------------------------------------------------

// ShellLauncher starts the executable through PowerShell's Start-Process
// with a hidden window, falling back to "cmd /C start" when PowerShell is
// unavailable. It is the launcher for Windows, where a console program
// started directly would either flash a window or die with its parent.
type ShellLauncher struct {
	pm ProcessManager
}

// NewShellLauncher creates a ShellLauncher over pm.
func NewShellLauncher(pm ProcessManager) *ShellLauncher {
	return &ShellLauncher{pm: pm}
}

// Serve starts "<exe> serve" hidden, trying PowerShell then cmd.
func (l *ShellLauncher) Serve(ctx context.Context, exe string) error {
	name, args := powershellCommand(startProcessScript(exe, "serve", false))
	if _, err := l.pm.Start(ctx, name, args...); err == nil {
		return nil
	}
	_, err := l.pm.Start(ctx, "cmd", "/C", "start", "", exe, "serve")
	return err
}

// Pull runs the pull through Start-Process -Wait so the call blocks until
// the download finishes.
func (l *ShellLauncher) Pull(ctx context.Context, exe, model string) error {
	name, args := powershellCommand(startProcessScript(exe, fmt.Sprintf(`pull "%s"`, model), true))
	_, err := l.pm.Run(ctx, name, args...)
	return err
}

// SupportsWarmStart returns true.
func (l *ShellLauncher) SupportsWarmStart() bool { return true }

// WarmStart runs `<exe> run "<model>" -p "hello"` hidden in the background.
func (l *ShellLauncher) WarmStart(ctx context.Context, exe, model string) error {
	name, args := powershellCommand(startProcessScript(exe, fmt.Sprintf(`run "%s" -p "hello"`, model), false))
	_, err := l.pm.Start(ctx, name, args...)
	return err
}

// powershellCommand wraps script in a hidden, profile-less PowerShell.
func powershellCommand(script string) (string, []string) {
	return "powershell", []string{"-NoProfile", "-WindowStyle", "Hidden", "-Command", script}
}

// startProcessScript renders a Start-Process invocation. exe and argList
// are embedded in single-quoted PowerShell strings.
func startProcessScript(exe, argList string, wait bool) string {
	waitFlag := ""
	if wait {
		waitFlag = "-Wait "
	}
	return fmt.Sprintf("Start-Process %s-WindowStyle Hidden -FilePath '%s' -ArgumentList '%s'",
		waitFlag, psQuote(exe), psQuote(argList))
}

// psQuote escapes s for a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockLauncher is a test double for Launcher. Nil function fields succeed.
type MockLauncher struct {
	ServeFunc     func(ctx context.Context, exe string) error
	PullFunc      func(ctx context.Context, exe, model string) error
	WarmStartFunc func(ctx context.Context, exe, model string) error

	// WarmStartSupported is returned by SupportsWarmStart.
	WarmStartSupported bool

	serves     atomic.Int32
	pulls      atomic.Int32
	warmStarts atomic.Int32
}

// Serve delegates to ServeFunc.
func (m *MockLauncher) Serve(ctx context.Context, exe string) error {
	m.serves.Add(1)
	if m.ServeFunc == nil {
		return nil
	}
	return m.ServeFunc(ctx, exe)
}

// Pull delegates to PullFunc.
func (m *MockLauncher) Pull(ctx context.Context, exe, model string) error {
	m.pulls.Add(1)
	if m.PullFunc == nil {
		return nil
	}
	return m.PullFunc(ctx, exe, model)
}

// SupportsWarmStart returns WarmStartSupported.
func (m *MockLauncher) SupportsWarmStart() bool { return m.WarmStartSupported }

// WarmStart delegates to WarmStartFunc.
func (m *MockLauncher) WarmStart(ctx context.Context, exe, model string) error {
	m.warmStarts.Add(1)
	if m.WarmStartFunc == nil {
		return nil
	}
	return m.WarmStartFunc(ctx, exe, model)
}

// Serves returns how many times Serve was called.
func (m *MockLauncher) Serves() int { return int(m.serves.Load()) }

// Pulls returns how many times Pull was called.
func (m *MockLauncher) Pulls() int { return int(m.pulls.Load()) }

// WarmStarts returns how many times WarmStart was called.
func (m *MockLauncher) WarmStarts() int { return int(m.warmStarts.Load()) }

// Compile-time interface compliance check.
var (
	_ Launcher = (*DirectLauncher)(nil)
	_ Launcher = (*ShellLauncher)(nil)
	_ Launcher = (*MockLauncher)(nil)
)
