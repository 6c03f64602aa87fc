// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import "testing"

func TestGlobalHashIDRoundTrip(t *testing.T) {
	cases := []struct {
		chunkID, localID int32
	}{
		{1, 1},
		{1, 2},
		{7, 1},
		{2147483647, 2147483647},
		{42, -1}, // local ids are treated as unsigned in the low word
	}
	for _, c := range cases {
		id := GlobalHashID(c.chunkID, c.localID)
		chunkID, localID := SplitHashID(id)
		if chunkID != c.chunkID || localID != c.localID {
			t.Errorf("SplitHashID(GlobalHashID(%d, %d)) = (%d, %d)",
				c.chunkID, c.localID, chunkID, localID)
		}
	}
}

func TestGlobalHashIDDistinctAcrossChunks(t *testing.T) {
	if GlobalHashID(1, 5) == GlobalHashID(2, 5) {
		t.Error("same local id in different chunks collided")
	}
	if GlobalHashID(1, 5) == GlobalHashID(1, 6) {
		t.Error("different local ids in one chunk collided")
	}
}

func TestNullIDs(t *testing.T) {
	if GlobalHashID(NullChunkID, 0) != NullHashID {
		t.Error("null chunk and local id did not combine to the null hash id")
	}
	if GlobalHashID(1, 1) == NullHashID {
		t.Error("a real hash id equals the null hash id")
	}
}
