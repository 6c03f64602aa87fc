// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package enumerator

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/chunkdex/chunkdex/lib/chunkhash"
)

func TestStringEnumerateIsIdempotent(t *testing.T) {
	enum, err := OpenStringEnumerator(filepath.Join(t.TempDir(), "descriptors"))
	if err != nil {
		t.Fatalf("OpenStringEnumerator: %v", err)
	}
	defer enum.Close()

	first, err := enum.Enumerate("chunk-A")
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	second, err := enum.Enumerate("chunk-A")
	if err != nil {
		t.Fatalf("Enumerate again: %v", err)
	}

	if first != second {
		t.Errorf("Enumerate returned %d then %d for the same name", first, second)
	}
	if first == 0 {
		t.Error("Enumerate assigned the reserved id 0")
	}
}

func TestStringEnumeratorAssignsSequentialIDs(t *testing.T) {
	enum, err := OpenStringEnumerator(filepath.Join(t.TempDir(), "descriptors"))
	if err != nil {
		t.Fatalf("OpenStringEnumerator: %v", err)
	}
	defer enum.Close()

	names := []string{"chunk-A", "chunk-B", "chunk-C"}
	for i, name := range names {
		id, err := enum.Enumerate(name)
		if err != nil {
			t.Fatalf("Enumerate(%q): %v", name, err)
		}
		if id != int32(i+1) {
			t.Errorf("Enumerate(%q) = %d, want %d", name, id, i+1)
		}
	}
}

func TestStringEnumeratorDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptors")

	enum, err := OpenStringEnumerator(path)
	if err != nil {
		t.Fatalf("OpenStringEnumerator: %v", err)
	}
	idA, _ := enum.Enumerate("chunk-A")
	idB, _ := enum.Enumerate("chunk-B")
	if err := enum.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenStringEnumerator(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	if got := reopened.IDOf("chunk-A"); got != idA {
		t.Errorf("IDOf(chunk-A) after reopen = %d, want %d", got, idA)
	}
	if got := reopened.IDOf("chunk-B"); got != idB {
		t.Errorf("IDOf(chunk-B) after reopen = %d, want %d", got, idB)
	}
	if got, _ := reopened.Enumerate("chunk-A"); got != idA {
		t.Errorf("Enumerate(chunk-A) after reopen = %d, want %d", got, idA)
	}
}

func TestStringIDOfDoesNotMutate(t *testing.T) {
	enum, err := OpenStringEnumerator(filepath.Join(t.TempDir(), "descriptors"))
	if err != nil {
		t.Fatalf("OpenStringEnumerator: %v", err)
	}
	defer enum.Close()

	if id := enum.IDOf("never-seen"); id != 0 {
		t.Errorf("IDOf(never-seen) = %d, want 0", id)
	}
	if enum.Len() != 0 {
		t.Errorf("IDOf assigned an id: Len = %d, want 0", enum.Len())
	}
}

func TestStringValueOf(t *testing.T) {
	enum, err := OpenStringEnumerator(filepath.Join(t.TempDir(), "descriptors"))
	if err != nil {
		t.Fatalf("OpenStringEnumerator: %v", err)
	}
	defer enum.Close()

	id, _ := enum.Enumerate("chunk-A")

	name, ok := enum.ValueOf(id)
	if !ok || name != "chunk-A" {
		t.Errorf("ValueOf(%d) = %q, %v; want chunk-A, true", id, name, ok)
	}
	if _, ok := enum.ValueOf(0); ok {
		t.Error("ValueOf(0) reported an assigned id")
	}
	if _, ok := enum.ValueOf(99); ok {
		t.Error("ValueOf(99) reported an assigned id")
	}
}

func TestStringEnumeratorDiscardsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptors")

	enum, err := OpenStringEnumerator(path)
	if err != nil {
		t.Fatalf("OpenStringEnumerator: %v", err)
	}
	enum.Enumerate("chunk-A")
	enum.Enumerate("chunk-B")
	enum.Close()

	// Simulate a torn write: append garbage that is not a complete
	// valid record.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("opening log for corruption: %v", err)
	}
	file.Write([]byte{0x09, 0x00, 0x00, 0x00, 'p', 'a', 'r'})
	file.Close()

	reopened, err := OpenStringEnumerator(path)
	if err != nil {
		t.Fatalf("reopening after torn tail: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 2 {
		t.Fatalf("Len after torn tail = %d, want 2", reopened.Len())
	}
	// Appends after recovery must still assign fresh ids correctly.
	id, err := reopened.Enumerate("chunk-C")
	if err != nil {
		t.Fatalf("Enumerate after recovery: %v", err)
	}
	if id != 3 {
		t.Errorf("Enumerate after recovery = %d, want 3", id)
	}
}

func TestContentHashEnumerateAndTryEnumerate(t *testing.T) {
	enum, err := OpenContentHashEnumerator(filepath.Join(t.TempDir(), "hashes"))
	if err != nil {
		t.Fatalf("OpenContentHashEnumerator: %v", err)
	}
	defer enum.Close()

	hash := chunkhash.HashContent([]byte("file contents"))

	if id := enum.TryEnumerate(hash); id != 0 {
		t.Errorf("TryEnumerate before Enumerate = %d, want 0", id)
	}

	id, err := enum.Enumerate(hash)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if id == 0 {
		t.Fatal("Enumerate assigned the reserved id 0")
	}

	if got := enum.TryEnumerate(hash); got != id {
		t.Errorf("TryEnumerate after Enumerate = %d, want %d", got, id)
	}
	if got, _ := enum.Enumerate(hash); got != id {
		t.Errorf("repeated Enumerate = %d, want %d", got, id)
	}
}

func TestContentHashEnumeratorDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashes")

	enum, err := OpenContentHashEnumerator(path)
	if err != nil {
		t.Fatalf("OpenContentHashEnumerator: %v", err)
	}
	hashA := chunkhash.HashContent([]byte("a"))
	hashB := chunkhash.HashContent([]byte("b"))
	idA, _ := enum.Enumerate(hashA)
	idB, _ := enum.Enumerate(hashB)
	enum.Close()

	reopened, err := OpenContentHashEnumerator(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	if got := reopened.TryEnumerate(hashA); got != idA {
		t.Errorf("TryEnumerate(hashA) after reopen = %d, want %d", got, idA)
	}
	if got := reopened.TryEnumerate(hashB); got != idB {
		t.Errorf("TryEnumerate(hashB) after reopen = %d, want %d", got, idB)
	}
}

func TestReadContentHashEnumeratorFromFS(t *testing.T) {
	// Build a log on disk, then replay it through an fs.FS the way
	// the registry replays `hashes` tables out of the archive.
	dir := t.TempDir()
	writable, err := OpenContentHashEnumerator(filepath.Join(dir, "hashes"))
	if err != nil {
		t.Fatalf("OpenContentHashEnumerator: %v", err)
	}
	hash := chunkhash.HashContent([]byte("shared file"))
	id, _ := writable.Enumerate(hash)
	writable.Close()

	logBytes, err := os.ReadFile(filepath.Join(dir, "hashes"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}

	fsys := fstest.MapFS{
		"chunk-A/hashes": &fstest.MapFile{Data: logBytes},
	}

	readOnly, err := ReadContentHashEnumerator(fsys, "chunk-A/hashes")
	if err != nil {
		t.Fatalf("ReadContentHashEnumerator: %v", err)
	}
	defer readOnly.Close()

	if got := readOnly.TryEnumerate(hash); got != id {
		t.Errorf("TryEnumerate via fs = %d, want %d", got, id)
	}

	// Read-only mode must reject mutation.
	other := chunkhash.HashContent([]byte("other"))
	if _, err := readOnly.Enumerate(other); err == nil {
		t.Error("Enumerate on read-only enumerator did not fail")
	}
}

func TestContentHashValueOfRoundTrip(t *testing.T) {
	enum, err := OpenContentHashEnumerator(filepath.Join(t.TempDir(), "hashes"))
	if err != nil {
		t.Fatalf("OpenContentHashEnumerator: %v", err)
	}
	defer enum.Close()

	hash := chunkhash.HashContent([]byte("payload"))
	id, _ := enum.Enumerate(hash)

	got, ok := enum.ValueOf(id)
	if !ok || got != hash {
		t.Errorf("ValueOf(%d) did not return the enumerated hash", id)
	}
}
