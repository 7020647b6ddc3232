// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianGateway/services/gateway/datatypes"
	"github.com/buger/jsonparser"
	"go.opentelemetry.io/otel/attribute"
)

// -----------------------------------------------------------------------------
// Model Listing
// -----------------------------------------------------------------------------

// ListModels returns the names in the daemon's /api/tags inventory.
//
// # Description
//
// A missing or null "models" array yields an empty list. Entries without a
// name are skipped. The inventory is fetched fresh on every call.
//
// # Outputs
//
//   - []string: Model names in inventory order.
//   - error: KindTransport when unreachable, KindUpstream when the body is
//     not JSON.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.ListModels")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, failSpan(span, transportError(providerOllama, err))
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failSpan(span, transportError(providerOllama, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failSpan(span, transportError(providerOllama, fmt.Errorf("read response body: %w", err)))
	}
	if !json.Valid(body) {
		return nil, failSpan(span, upstreamError(providerOllama, resp.StatusCode, body,
			fmt.Sprintf("failed to parse model inventory (status %s)", statusLine(resp.StatusCode))))
	}

	names, err := stringsAt(body, "name", "models")
	if err != nil {
		return nil, failSpan(span, upstreamError(providerOllama, resp.StatusCode, body,
			fmt.Sprintf("failed to parse model inventory: %v", err)))
	}
	span.SetAttributes(attribute.Int("llm.model_count", len(names)))
	slog.Debug("Fetched model list from Ollama", "count", len(names))
	return names, nil
}

// HasModel reports whether the inventory contains exactly name.
//
// Matching is exact: "llama3" and "llama3:latest" are different names.
func (c *OllamaClient) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	return containsModel(models, name), nil
}

// ModelExists is HasModel with the empty name treated as present.
func (c *OllamaClient) ModelExists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return true, nil
	}
	return c.HasModel(ctx, name)
}

func containsModel(models []string, name string) bool {
	for _, m := range models {
		if m == name {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Model Pulling
// -----------------------------------------------------------------------------

// PullProgressFunc receives each parsed progress record of a pull, in
// receipt order.
type PullProgressFunc func(ev datatypes.ProgressEvent)

type ollamaPullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// maxPullLine bounds a single NDJSON record.
const maxPullLine = 1024 * 1024

// PullModel asks the daemon to download name and reports progress.
//
// # Description
//
// POSTs {name, stream:true} to /api/pull and consumes the response as
// newline-delimited JSON. Records split across reads are reassembled before
// parsing. Each record becomes a ProgressEvent with status, completed,
// total, and derived percent. A line that is not JSON is forwarded as a
// raw notice (ProgressEvent.Message) instead of being dropped. A record
// carrying an "error" field ends the pull with that error.
//
// # Inputs
//
//   - ctx: Cancels the download request.
//   - name: Model to pull.
//   - progress: Callback per record; may be nil.
//
// # Outputs
//
//   - error: nil on a clean close. KindTransport for connection or read
//     failures, KindUpstream for failure statuses and error records.
//
// # Examples
//
//	err := client.PullModel(ctx, "llama3", func(ev datatypes.ProgressEvent) {
//	    fmt.Printf("\r%s %.1f%%", ev.Status, ev.Percent)
//	})
func (c *OllamaClient) PullModel(ctx context.Context, name string, progress PullProgressFunc) error {
	ctx, span := tracer.Start(ctx, "OllamaClient.PullModel")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", name))

	reqBytes, err := json.Marshal(ollamaPullRequest{Name: name, Stream: true})
	if err != nil {
		return failSpan(span, transportError(providerOllama, fmt.Errorf("marshal request: %w", err)))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(reqBytes))
	if err != nil {
		return failSpan(span, transportError(providerOllama, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failSpan(span, transportError(providerOllama, err))
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(resp.Body)
		return failSpan(span, upstreamError(providerOllama, resp.StatusCode, body,
			fmt.Sprintf("pull failed with status %s: %s", statusLine(resp.StatusCode), errorMessage(body, "error"))))
	}

	records := 0
	err = scanPullStream(resp.Body, func(line []byte) error {
		records++
		ev, pullErr := parsePullLine(line)
		if pullErr != "" {
			return upstreamError(providerOllama, resp.StatusCode, line, pullErr)
		}
		if progress != nil {
			progress(ev)
		}
		return nil
	})
	span.SetAttributes(attribute.Int("llm.pull_records", records))
	if err != nil {
		var gerr *GatewayError
		if errors.As(err, &gerr) {
			return failSpan(span, gerr)
		}
		return failSpan(span, transportError(providerOllama, fmt.Errorf("read pull stream: %w", err)))
	}
	slog.Debug("Model pull stream closed", "model", name, "records", records)
	return nil
}

// scanPullStream splits r on '\n' and calls fn with every non-empty,
// whitespace-trimmed line. A final line without a trailing newline is
// delivered too.
func scanPullStream(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxPullLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// parsePullLine converts one NDJSON record. It returns a non-empty second
// value when the record reports a daemon-side failure.
func parsePullLine(line []byte) (datatypes.ProgressEvent, string) {
	if !json.Valid(line) {
		return datatypes.RawProgress(string(line)), ""
	}
	if msg, err := jsonparser.GetString(line, "error"); err == nil && msg != "" {
		return datatypes.ProgressEvent{}, msg
	}
	status, _ := jsonparser.GetString(line, "status")
	total, _ := jsonparser.GetFloat(line, "total")
	completed, _ := jsonparser.GetFloat(line, "completed")
	ev := datatypes.NewProgressEvent(status, int64(completed), int64(total))
	ev.Digest, _ = jsonparser.GetString(line, "digest")
	return ev, ""
}
