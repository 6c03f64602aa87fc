// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkpack builds chunk fragment archives: the deflate zip
// files a locator serves and the loader downloads and appends into
// the local chunk archive.
//
// A fragment carries one chunk: per-index payload directories, the
// content hash table, the build timestamp, and the names of indexes
// that were built empty. Fragment layout mirrors the chunk's layout
// inside the local archive, minus the metadata entry the loader adds
// at append time.
package chunkpack
