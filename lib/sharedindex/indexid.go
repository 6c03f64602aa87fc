// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import (
	"fmt"
	"io/fs"
	"sync"

	"github.com/chunkdex/chunkdex/lib/enumerator"
)

// IndexID names one index an engine implementation provides. The
// string form doubles as the chunk subdirectory name holding that
// index's data.
type IndexID string

// StubTreeDirName is the distinguished chunk subdirectory holding
// stub indexes. Unlike plain index directories, it contains one
// further level of subdirectories, one per stub index key.
const StubTreeDirName = "Stubs"

// EngineSpec carries everything an engine factory needs to open one
// index of one chunk.
type EngineSpec struct {
	// Root is the chunk's subtree for this index inside the shared
	// archive's read view.
	Root fs.FS

	// Index is the index being opened.
	Index IndexID

	// ChunkID is the owning chunk's registered id.
	ChunkID int32

	// Timestamp is the chunk's creation time in Unix milliseconds.
	Timestamp int64

	// Empty is set when the chunk contributes no entries for this
	// index. An empty engine still participates in content hash
	// deduplication through its chunk's hash table.
	Empty bool

	// Hashes is the owning chunk's content hash enumerator.
	Hashes *enumerator.ContentHashEnumerator
}

// Engine is one queryable per-chunk index instance, produced by an
// IndexKind factory during chunk registration. The concrete query
// surface is the engine implementation's business; the registry only
// manages lifecycle.
type Engine interface {
	Close() error
}

// IndexKind describes one registered index implementation: the
// directory name it claims inside chunks and the factory that opens
// its engines.
type IndexKind struct {
	// ID is the index's name and chunk subdirectory name.
	ID IndexID

	// Stub marks stub index kinds, which live nested under the
	// StubTreeDirName directory rather than at the chunk root.
	Stub bool

	// NewEngine opens the index for one chunk.
	NewEngine func(EngineSpec) (Engine, error)
}

// KindRegistry maps index names to their registered kinds. Index
// implementations populate it at startup; chunk registration queries
// it by directory name. An explicit object rather than package-level
// state, so hosts and tests control exactly which kinds exist.
type KindRegistry struct {
	mu    sync.RWMutex
	kinds map[IndexID]IndexKind
}

// NewKindRegistry returns an empty registry.
func NewKindRegistry() *KindRegistry {
	return &KindRegistry{kinds: make(map[IndexID]IndexKind)}
}

// Register adds a kind. Registering the same id twice is an error —
// two implementations claiming one directory name would make chunk
// registration ambiguous.
func (r *KindRegistry) Register(kind IndexKind) error {
	if kind.ID == "" {
		return fmt.Errorf("index kind with empty id")
	}
	if kind.NewEngine == nil {
		return fmt.Errorf("index kind %s has no engine factory", kind.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[kind.ID]; exists {
		return fmt.Errorf("index kind %s already registered", kind.ID)
	}
	r.kinds[kind.ID] = kind
	return nil
}

// FindByName looks up a kind by its directory name.
func (r *KindRegistry) FindByName(name string) (IndexKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[IndexID(name)]
	return kind, ok
}

// Len returns the number of registered kinds.
func (r *KindRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
