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
	"github.com/buger/jsonparser"
)

// extractionStrategy pulls one named string field out of a response body.
//
// Backends disagree on where the answer lives. Strategies are applied in
// priority order and the first non-empty match wins.
type extractionStrategy struct {
	name string
	path []string
}

// extract returns the value at s.path if it is a non-empty string.
func (s extractionStrategy) extract(body []byte) (string, bool) {
	v, err := jsonparser.GetString(body, s.path...)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

type strategyChain []extractionStrategy

// first applies the chain in order and returns the first match along with
// the name of the strategy that produced it.
func (c strategyChain) first(body []byte) (text string, strategy string, ok bool) {
	for _, s := range c {
		if v, ok := s.extract(body); ok {
			return v, s.name, true
		}
	}
	return "", "", false
}

var (
	// ollamaChatStrategies are tried against /api/chat responses.
	ollamaChatStrategies = strategyChain{
		{name: "message.content", path: []string{"message", "content"}},
		{name: "response", path: []string{"response"}},
	}

	// ollamaGenerateStrategies are tried against /api/generate responses.
	ollamaGenerateStrategies = strategyChain{
		{name: "response", path: []string{"response"}},
	}
)

// errorMessage returns the string at path, or the raw body when the field
// is absent or not a string.
func errorMessage(body []byte, path ...string) string {
	if v, err := jsonparser.GetString(body, path...); err == nil && v != "" {
		return v
	}
	return string(body)
}

// stringsAt collects the string field key of every object in the array at
// arrayPath. A missing or non-array value yields an empty list; entries
// without the key are skipped. body must already be valid JSON.
func stringsAt(body []byte, key string, arrayPath ...string) ([]string, error) {
	out := []string{}
	arr, dataType, _, err := jsonparser.Get(body, arrayPath...)
	if err == jsonparser.KeyPathNotFoundError || dataType != jsonparser.Array {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	_, err = jsonparser.ArrayEach(arr, func(value []byte, vt jsonparser.ValueType, _ int, _ error) {
		if vt != jsonparser.Object {
			return
		}
		if s, err := jsonparser.GetString(value, key); err == nil {
			out = append(out, s)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
