// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import (
	"fmt"
	"sync"
)

// SharedIndexChunk is one (index, chunk) pair materialized from the
// shared archive: the registry entry binding an opened engine to the
// set of projects referencing it.
//
// A chunk handle is created at most once per (index, chunk id) and
// lives until its last referencing project closes, at which point the
// registry closes the engine and drops the handle.
type SharedIndexChunk struct {
	index     IndexID
	chunkID   int32
	timestamp int64
	empty     bool
	engine    Engine

	mu       sync.Mutex
	projects map[Project]struct{}
}

func newSharedIndexChunk(index IndexID, chunkID int32, timestamp int64, empty bool, engine Engine) *SharedIndexChunk {
	return &SharedIndexChunk{
		index:     index,
		chunkID:   chunkID,
		timestamp: timestamp,
		empty:     empty,
		engine:    engine,
		projects:  make(map[Project]struct{}),
	}
}

// IndexName returns the index this chunk handle belongs to.
func (c *SharedIndexChunk) IndexName() IndexID { return c.index }

// ChunkID returns the owning chunk's registered id.
func (c *SharedIndexChunk) ChunkID() int32 { return c.chunkID }

// Timestamp returns the chunk's creation time in Unix milliseconds.
func (c *SharedIndexChunk) Timestamp() int64 { return c.timestamp }

// Empty reports whether the chunk contributes no entries for this
// index. Empty chunks still participate in content hash dedup.
func (c *SharedIndexChunk) Empty() bool { return c.empty }

// Index returns the queryable engine instance.
func (c *SharedIndexChunk) Index() Engine { return c.engine }

// AttachProject adds project to the chunk's reference set. Attaching
// an already-attached project is a no-op.
func (c *SharedIndexChunk) AttachProject(project Project) {
	c.mu.Lock()
	c.projects[project] = struct{}{}
	c.mu.Unlock()
}

// RemoveProject removes project from the reference set and reports
// whether the set became empty — the signal for the registry to drop
// and close the chunk. Removing a project that was never attached
// reports false.
func (c *SharedIndexChunk) RemoveProject(project Project) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, attached := c.projects[project]; !attached {
		return false
	}
	delete(c.projects, project)
	return len(c.projects) == 0
}

// ProjectCount returns the current reference count.
func (c *SharedIndexChunk) ProjectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.projects)
}

// Close releases the underlying engine.
func (c *SharedIndexChunk) Close() error {
	if c.engine == nil {
		return nil
	}
	if err := c.engine.Close(); err != nil {
		return fmt.Errorf("closing %s engine of chunk %d: %w", c.index, c.chunkID, err)
	}
	return nil
}
