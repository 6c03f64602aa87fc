// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package enumerator implements the persistent bidirectional maps the
// chunk cache is built on: a string enumerator assigning stable small
// integer ids to chunk descriptor identifiers, and a content hash
// enumerator assigning local ids to file content hashes within one
// chunk.
//
// Both are backed by append-only log files of checksummed records.
// An entry's id is its 1-based ordinal in the log, so the forward and
// reverse mappings need no separate index structures: replaying the
// log rebuilds both. A truncated or corrupt tail (torn write at
// shutdown) is detected by the per-record checksum; everything before
// the first bad record is kept and the tail is discarded.
//
// The content hash enumerator has a second, read-only mode that
// replays a log out of an fs.FS — this is how per-chunk `hashes`
// tables are read directly out of the shared archive without
// extracting them to disk.
package enumerator
