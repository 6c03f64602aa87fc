// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

// NullHashID is the sentinel returned when no loaded chunk contains a
// content hash.
const NullHashID int64 = 0

// NullChunkID is the reserved chunk id meaning "not registered".
const NullChunkID int32 = 0

// GlobalHashID combines a chunk id with a hash's chunk-local id into
// one global content id: chunk id in bits 32..62, local id in the low
// 32 bits. Both inputs are positive, so the sign bit stays clear and
// remains available to callers that flag ids.
func GlobalHashID(chunkID, localID int32) int64 {
	return int64(chunkID)<<32 | int64(uint32(localID))
}

// SplitHashID decomposes a global content id into its chunk id and
// chunk-local hash id.
func SplitHashID(id int64) (chunkID, localID int32) {
	return int32(id >> 32), int32(uint32(id))
}
