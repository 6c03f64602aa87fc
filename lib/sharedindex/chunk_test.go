// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import "testing"

type testProject struct {
	name  string
	stamp uint64
}

func (p *testProject) Name() string           { return p.name }
func (p *testProject) StructureStamp() uint64 { return p.stamp }

type closeCountEngine struct {
	closed int
}

func (e *closeCountEngine) Close() error {
	e.closed++
	return nil
}

func TestChunkAttachIsIdempotent(t *testing.T) {
	chunk := newSharedIndexChunk("Trigram", 1, 100, false, &closeCountEngine{})
	project := &testProject{name: "alpha"}

	chunk.AttachProject(project)
	chunk.AttachProject(project)
	if got := chunk.ProjectCount(); got != 1 {
		t.Errorf("ProjectCount = %d after double attach, want 1", got)
	}
}

func TestChunkRemoveProject(t *testing.T) {
	chunk := newSharedIndexChunk("Trigram", 1, 100, false, &closeCountEngine{})
	alpha := &testProject{name: "alpha"}
	beta := &testProject{name: "beta"}

	chunk.AttachProject(alpha)
	chunk.AttachProject(beta)

	if chunk.RemoveProject(alpha) {
		t.Error("RemoveProject reported empty while beta is still attached")
	}
	if !chunk.RemoveProject(beta) {
		t.Error("RemoveProject did not report empty after last detach")
	}
}

func TestChunkRemoveUnattachedProject(t *testing.T) {
	chunk := newSharedIndexChunk("Trigram", 1, 100, false, &closeCountEngine{})
	chunk.AttachProject(&testProject{name: "alpha"})

	if chunk.RemoveProject(&testProject{name: "never-attached"}) {
		t.Error("removing a project that was never attached reported empty")
	}
	if got := chunk.ProjectCount(); got != 1 {
		t.Errorf("ProjectCount = %d, want 1", got)
	}
}

func TestChunkCloseClosesEngine(t *testing.T) {
	engine := &closeCountEngine{}
	chunk := newSharedIndexChunk("Trigram", 1, 100, false, engine)

	if err := chunk.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if engine.closed != 1 {
		t.Errorf("engine closed %d times, want 1", engine.closed)
	}
}

func TestChunkAccessors(t *testing.T) {
	engine := &closeCountEngine{}
	chunk := newSharedIndexChunk("Stubs.java", 7, 12345, true, engine)

	if chunk.IndexName() != "Stubs.java" {
		t.Errorf("IndexName = %q", chunk.IndexName())
	}
	if chunk.ChunkID() != 7 {
		t.Errorf("ChunkID = %d", chunk.ChunkID())
	}
	if chunk.Timestamp() != 12345 {
		t.Errorf("Timestamp = %d", chunk.Timestamp())
	}
	if !chunk.Empty() {
		t.Error("Empty = false")
	}
	if chunk.Index() != Engine(engine) {
		t.Error("Index did not return the configured engine")
	}
}
