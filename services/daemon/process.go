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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager runs external executables without presenting a window.
//
// Every exec.Command in this package goes through a ProcessManager so tests
// can substitute MockProcessManager and assert on the exact invocations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type ProcessManager interface {
	// Run executes a command and waits for it to exit.
	//
	// # Inputs
	//
	//   - ctx: Kills the process when cancelled.
	//   - name: Executable name or path.
	//   - args: Command arguments.
	//
	// # Outputs
	//
	//   - []byte: Captured stdout.
	//   - error: Non-nil if the command fails; stderr is appended.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// Start launches a background process and returns immediately.
	//
	// The child is detached from the caller: it keeps running after ctx is
	// cancelled and after the gateway exits. Its output is discarded.
	//
	// # Outputs
	//
	//   - int: PID of the started process.
	//   - error: Non-nil if the executable could not be started.
	Start(ctx context.Context, name string, args ...string) (int, error)
}

// -----------------------------------------------------------------------------
// Default Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a ProcessManager that executes real
// processes.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its stdout.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Start launches a background process and returns immediately.
func (pm *DefaultProcessManager) Start(_ context.Context, name string, args ...string) (int, error) {
	// Not CommandContext: the child must outlive the request that started it.
	cmd := exec.Command(name, args...)
	hideWindow(cmd)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", name, err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use. A nil function
// field makes the corresponding method succeed with zero values.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    StartFunc: func(ctx context.Context, name string, args ...string) (int, error) {
//	        return 4242, nil
//	    },
//	}
type MockProcessManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// StartFunc is called when Start is invoked
	StartFunc func(ctx context.Context, name string, args ...string) (int, error)

	calls []ProcessManagerCall
	mu    sync.Mutex
}

// ProcessManagerCall records a single method invocation.
type ProcessManagerCall struct {
	Method string
	Name   string
	Args   []string
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record("Run", name, args)
	if m.RunFunc == nil {
		return nil, nil
	}
	return m.RunFunc(ctx, name, args...)
}

// Start delegates to StartFunc and records the call.
func (m *MockProcessManager) Start(ctx context.Context, name string, args ...string) (int, error) {
	m.record("Start", name, args)
	if m.StartFunc == nil {
		return 1, nil
	}
	return m.StartFunc(ctx, name, args...)
}

func (m *MockProcessManager) record(method, name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ProcessManagerCall{
		Method: method,
		Name:   name,
		Args:   append([]string(nil), args...),
	})
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ProcessManagerCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
