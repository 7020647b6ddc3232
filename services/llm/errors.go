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
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// ErrorKind classifies adapter failures.
type ErrorKind int

const (
	// KindTransport means the request could not be built or the backend
	// could not be reached.
	KindTransport ErrorKind = iota

	// KindUpstream means the backend answered with a failure status and
	// (usually) an error message of its own.
	KindUpstream

	// KindEmptyResponse means the backend answered successfully but no
	// strategy could extract any content.
	KindEmptyResponse
)

// String returns the kind as a string for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "TRANSPORT"
	case KindUpstream:
		return "UPSTREAM"
	case KindEmptyResponse:
		return "EMPTY_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// GatewayError is the classified error returned by every adapter call.
//
// # Description
//
// Error() always yields a human-readable string suitable for the UI. The
// structured fields are kept for logging, metrics, and errors.As callers.
//
// # Fields
//
//   - Kind: Failure classification.
//   - Provider: "ollama" or "openai".
//   - StatusCode: Last observed HTTP status, 0 when no response arrived.
//   - Body: Last observed raw response body.
//   - Message: Backend-provided error text (upstream errors).
//   - Err: Underlying cause, if any.
type GatewayError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Body       string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	switch e.Kind {
	case KindTransport:
		if e.Err != nil {
			return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
		}
		return fmt.Sprintf("%s request failed", e.Provider)
	case KindUpstream:
		if e.Message != "" {
			return e.Message
		}
		return e.Body
	default:
		return fmt.Sprintf("%s empty response: status=%s body=%s",
			e.Provider, statusLine(e.StatusCode), e.Body)
	}
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a GatewayError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && gerr.Kind == k
}

// KindOf returns the kind of err and whether err is a GatewayError.
func KindOf(err error) (ErrorKind, bool) {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Kind, true
	}
	return 0, false
}

func transportError(provider string, err error) *GatewayError {
	return &GatewayError{Kind: KindTransport, Provider: provider, Err: err}
}

func upstreamError(provider string, status int, body []byte, message string) *GatewayError {
	return &GatewayError{
		Kind:       KindUpstream,
		Provider:   provider,
		StatusCode: status,
		Body:       string(body),
		Message:    message,
	}
}

func emptyResponseError(provider string, status int, body []byte) *GatewayError {
	return &GatewayError{
		Kind:       KindEmptyResponse,
		Provider:   provider,
		StatusCode: status,
		Body:       string(body),
	}
}

// statusLine renders a status code the way HTTP clients print it,
// e.g. "500 Internal Server Error".
func statusLine(code int) string {
	if code == 0 {
		return "0"
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s", code, http.StatusText(code)))
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
