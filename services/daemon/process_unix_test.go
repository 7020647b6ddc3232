// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build !windows

package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProcessManager_Run(t *testing.T) {
	pm := NewDefaultProcessManager()

	out, err := pm.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestDefaultProcessManager_RunIncludesStderr(t *testing.T) {
	pm := NewDefaultProcessManager()

	_, err := pm.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDefaultProcessManager_StartMissingExecutable(t *testing.T) {
	pm := NewDefaultProcessManager()

	_, err := pm.Start(context.Background(), "/nonexistent/aleutian-daemon", "serve")
	assert.Error(t, err)
}

func TestDefaultProcessManager_Start(t *testing.T) {
	pm := NewDefaultProcessManager()

	pid, err := pm.Start(context.Background(), "sh", "-c", "exit 0")
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
}
