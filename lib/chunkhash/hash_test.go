// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package chunkhash

import (
	"strings"
	"testing"
)

func TestDomainsAreDistinct(t *testing.T) {
	// The same input must hash differently in the content and
	// descriptor domains.
	input := "identical input for both domains"

	contentHash := HashContent([]byte(input))
	descriptorHash := HashDescriptor(input)

	if contentHash == descriptorHash {
		t.Error("content and descriptor domains produced the same hash for identical input")
	}
}

func TestHashesAreDeterministic(t *testing.T) {
	data := []byte("deterministic input")

	if HashContent(data) != HashContent(data) {
		t.Error("HashContent produced different results for the same input")
	}
	if HashDescriptor("chunk-A") != HashDescriptor("chunk-A") {
		t.Error("HashDescriptor produced different results for the same input")
	}
}

func TestHashContentEmptyInput(t *testing.T) {
	// Empty input still produces a valid (non-zero) keyed hash.
	var zero Hash
	if HashContent(nil) == zero {
		t.Error("HashContent returned zero hash for nil input")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	hash := HashContent([]byte("round trip"))

	formatted := FormatHash(hash)
	if len(formatted) != 64 {
		t.Fatalf("formatted hash has length %d, want 64", len(formatted))
	}
	if formatted != strings.ToLower(formatted) {
		t.Error("formatted hash is not lowercase")
	}

	parsed, err := ParseHash(formatted)
	if err != nil {
		t.Fatalf("ParseHash(%q): %v", formatted, err)
	}
	if parsed != hash {
		t.Error("parsed hash does not match original")
	}
}

func TestParseHashRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short", "abcd"},
		{"long", strings.Repeat("ab", 33)},
		{"non-hex", strings.Repeat("zz", 32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseHash(tc.input); err == nil {
				t.Errorf("ParseHash(%q) accepted invalid input", tc.input)
			}
		})
	}
}
