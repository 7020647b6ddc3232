// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

// ChunkSize is the number of characters per chat chunk event.
const ChunkSize = 8

// Batch splits text into consecutive pieces of size characters. The last
// piece may be shorter. Concatenating the result reproduces text exactly.
// Splitting is by rune so multi-byte characters are never cut.
func Batch(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}

	batches := make([]string, 0, len(text)/size+1)
	start, count := 0, 0
	for i := range text {
		if count == size {
			batches = append(batches, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(batches, text[start:])
}
