// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import "context"

// OrderEntry is one project dependency unit — a module or library
// root set — that a shared chunk can cover.
type OrderEntry struct {
	// Name identifies the module or library.
	Name string `cbor:"name" json:"name"`

	// Kind is "module" or "library".
	Kind string `cbor:"kind" json:"kind"`

	// Roots lists the entry's content roots.
	Roots []string `cbor:"roots,omitempty" json:"roots,omitempty"`
}

// Project identifies one consumer session of the shared cache.
// Implementations must be comparable (typically a pointer type): the
// registry keys reference sets and structure stamps by the Project
// value itself.
type Project interface {
	// Name identifies the project in logs.
	Name() string

	// StructureStamp is a modification count for the project's root
	// configuration. When it is unchanged between two LocateIndexes
	// calls, the second call short-circuits.
	StructureStamp() uint64
}

// ChunkDescriptor describes one downloadable chunk, produced by a
// Locator. The descriptor knows how to fetch its own payload; the
// cache never sees the transport.
type ChunkDescriptor interface {
	// ChunkUniqueID is the chunk's stable unique identifier string.
	// It doubles as the chunk's directory name inside the shared
	// archive.
	ChunkUniqueID() string

	// SupportedVersion is the infrastructure version the chunk was
	// built against.
	SupportedVersion() InfrastructureVersion

	// OrderEntries lists the dependency units the chunk covers.
	OrderEntries() []OrderEntry

	// Download fetches the chunk's zip fragment into dest. It must
	// either populate dest with a valid fragment or fail, honoring
	// ctx cancellation.
	Download(ctx context.Context, dest string) error
}

// Locator finds candidate chunks for a project's order entries.
// External collaborators implement this; failures of one locator are
// logged and do not stop the others.
type Locator interface {
	// Name identifies the locator in logs.
	Name() string

	// LocateIndexes returns descriptors for chunks that may cover
	// the given order entries.
	LocateIndexes(ctx context.Context, project Project, entries []OrderEntry) ([]ChunkDescriptor, error)
}
