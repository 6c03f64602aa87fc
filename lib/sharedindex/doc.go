// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package sharedindex implements the shared index chunk cache: a
// persistent, multi-consumer catalog of pre-built index chunks that
// are downloaded once, appended into a shared archive, and attached
// to any number of concurrent project sessions.
//
// The Service is the entry point. It owns the persistent descriptor
// enumerator (chunk id assignment), the append-only chunk archive,
// the per-chunk content hash enumerators used for cross-chunk
// deduplication, and the in-memory registry of materialized chunks
// with their per-project reference sets.
//
// All storage mutations — downloads, archive appends, sync, and the
// registrations they trigger — run on a single sequential background
// worker, so there is never a concurrent writer on the archive and
// the same chunk is never downloaded twice concurrently. Registry
// reads may run on any goroutine.
//
// Index engines are decoupled through the KindRegistry: index
// implementations register an IndexKind (name plus engine factory) at
// startup, and chunk registration maps each directory found inside a
// chunk to a registered kind. Directories with no registered kind are
// skipped, which keeps old binaries forward compatible with chunks
// built for newer index sets.
package sharedindex
