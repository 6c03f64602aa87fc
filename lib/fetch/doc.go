// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch downloads chunk fragments over HTTP and implements
// the manifest-driven locator.
//
// A locator endpoint serves a JSON manifest listing the chunks it
// offers, one entry per chunk with its unique id, infrastructure
// version, covered order entries, and fragment URL. Fragments may be
// served raw or compressed with zstd or lz4; Download picks the
// decoder from the response's Content-Encoding header, falling back
// to the URL extension.
package fetch
