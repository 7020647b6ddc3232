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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
)

func progressEvent(p datatypes.ProgressEvent) datatypes.StreamEvent {
	return datatypes.StreamEvent{Type: datatypes.EventProgress, Progress: &p}
}

func TestProgressRenderer_BufferIsNotATerminal(t *testing.T) {
	assert.False(t, newProgressRenderer(&bytes.Buffer{}, false).tty)
}

func TestProgressRenderer_TTYRedrawsLine(t *testing.T) {
	var out bytes.Buffer
	r := &progressRenderer{out: &out, tty: true}

	require.NoError(t, r.render(progressEvent(datatypes.NewProgressEvent("pulling manifest", 0, 0))))
	require.NoError(t, r.render(progressEvent(datatypes.NewProgressEvent("downloading", 25, 100))))
	require.NoError(t, r.render(progressEvent(datatypes.NewProgressEvent("downloading", 100, 100))))
	require.NoError(t, r.render(datatypes.StreamEvent{Type: datatypes.EventEnd}))

	want := "\rpulling manifest\n" +
		"\rdownloading [#######.......................]  25.0%" +
		"\rdownloading [##############################] 100.0%\n" +
		"success\n"
	assert.Equal(t, want, out.String())
}

func TestProgressRenderer_PlainDeduplicatesStatus(t *testing.T) {
	var out bytes.Buffer
	r := &progressRenderer{out: &out}

	require.NoError(t, r.render(progressEvent(datatypes.NewProgressEvent("verifying", 0, 0))))
	require.NoError(t, r.render(progressEvent(datatypes.NewProgressEvent("verifying", 0, 0))))
	require.NoError(t, r.render(progressEvent(datatypes.RawProgress("not json"))))
	require.NoError(t, r.render(datatypes.StreamEvent{Type: datatypes.EventError, Error: "disk full"}))

	assert.Equal(t, "verifying\nnot json\nerror: disk full\n", out.String())
}

func TestBar(t *testing.T) {
	assert.Equal(t, "["+repeat('.', 30)+"]", bar(0))
	assert.Equal(t, "["+repeat('#', 15)+repeat('.', 15)+"]", bar(50))
	assert.Equal(t, "["+repeat('#', 30)+"]", bar(140))
	assert.Equal(t, "["+repeat('.', 30)+"]", bar(-5))
}

func repeat(c byte, n int) string {
	return string(bytes.Repeat([]byte{c}, n))
}
