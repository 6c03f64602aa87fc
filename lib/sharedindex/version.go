// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import (
	"sort"
	"strings"
)

// InfrastructureVersion identifies the base indexing algorithms a
// chunk was built against: a map from base index name to its version
// tag. A chunk is usable for index lookups only when its version
// matches the host's exactly; a mismatched chunk is still attached so
// its content hash table contributes to deduplication.
type InfrastructureVersion struct {
	// BaseIndexes maps base index names to version tags.
	BaseIndexes map[string]string `cbor:"base_indexes" json:"base_indexes"`
}

// Matches reports whether both versions carry exactly the same base
// index tag set.
func (v InfrastructureVersion) Matches(other InfrastructureVersion) bool {
	if len(v.BaseIndexes) != len(other.BaseIndexes) {
		return false
	}
	for name, tag := range v.BaseIndexes {
		if other.BaseIndexes[name] != tag {
			return false
		}
	}
	return true
}

// String renders the version as sorted name:tag pairs, for logs.
func (v InfrastructureVersion) String() string {
	pairs := make([]string, 0, len(v.BaseIndexes))
	for name, tag := range v.BaseIndexes {
		pairs = append(pairs, name+":"+tag)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
