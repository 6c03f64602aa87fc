// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package chunkpack

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/chunkdex/chunkdex/lib/chunkhash"
	"github.com/chunkdex/chunkdex/lib/enumerator"
	"github.com/chunkdex/chunkdex/lib/sharedindex"
)

func testInput() Input {
	return Input{
		Timestamp: 1700000000000,
		Hashes: []chunkhash.Hash{
			chunkhash.HashContent([]byte("first file")),
			chunkhash.HashContent([]byte("second file")),
		},
		Indexes: []IndexInput{
			{
				Name: "Trigram",
				Files: map[string][]byte{
					"values":       []byte("trigram payload"),
					"forward/keys": []byte("forward keys"),
				},
			},
			{
				Name:  "Stubs.java",
				Stub:  true,
				Files: map[string][]byte{"tree": []byte("stub tree")},
			},
			{Name: "Todo", Empty: true},
		},
	}
}

func TestPackLayout(t *testing.T) {
	out := filepath.Join(t.TempDir(), "chunk.zip")
	if err := Pack(testInput(), out); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	reader, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("opening fragment: %v", err)
	}
	defer reader.Close()

	wantFiles := map[string]string{
		"Trigram/values":        "trigram payload",
		"Trigram/forward/keys":  "forward keys",
		"Stubs/Stubs.java/tree": "stub tree",
	}
	for name, want := range wantFiles {
		file, err := reader.Open(name)
		if err != nil {
			t.Fatalf("fragment missing %s: %v", name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(file); err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		file.Close()
		if buf.String() != want {
			t.Errorf("%s = %q, want %q", name, buf.String(), want)
		}
	}

	timestamp, err := sharedindex.ReadTimestamp(&reader.Reader, ".")
	if err != nil {
		t.Fatalf("ReadTimestamp: %v", err)
	}
	if timestamp != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", timestamp)
	}
}

func TestPackHashTableReadable(t *testing.T) {
	input := testInput()
	out := filepath.Join(t.TempDir(), "chunk.zip")
	if err := Pack(input, out); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	reader, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("opening fragment: %v", err)
	}
	defer reader.Close()

	hashes, err := enumerator.ReadContentHashEnumerator(&reader.Reader, sharedindex.HashesFileName)
	if err != nil {
		t.Fatalf("ReadContentHashEnumerator: %v", err)
	}
	for i, hash := range input.Hashes {
		if id := hashes.TryEnumerate(hash); id != int32(i+1) {
			t.Errorf("hash %d enumerated as %d, want %d", i, id, i+1)
		}
	}
	if id := hashes.TryEnumerate(chunkhash.HashContent([]byte("absent"))); id != 0 {
		t.Errorf("absent hash enumerated as %d, want 0", id)
	}
}

func TestPackIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.zip")
	second := filepath.Join(dir, "b.zip")
	if err := Pack(testInput(), first); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := Pack(testInput(), second); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical inputs produced different fragments")
	}
}

func TestPackRejectsReservedIndexName(t *testing.T) {
	input := Input{
		Timestamp: 1,
		Indexes:   []IndexInput{{Name: sharedindex.StubTreeDirName}},
	}
	if err := Pack(input, filepath.Join(t.TempDir(), "chunk.zip")); err == nil {
		t.Fatal("Pack accepted an index named after the stub tree")
	}
}

func TestPackRejectsNonPositiveTimestamp(t *testing.T) {
	if err := Pack(Input{Timestamp: 0}, filepath.Join(t.TempDir(), "chunk.zip")); err == nil {
		t.Fatal("Pack accepted a zero timestamp")
	}
}

func TestInspect(t *testing.T) {
	out := filepath.Join(t.TempDir(), "chunk.zip")
	if err := Pack(testInput(), out); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	summary, err := Inspect(out)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if summary.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", summary.Timestamp)
	}
	if summary.HashCount != 2 {
		t.Errorf("HashCount = %d, want 2", summary.HashCount)
	}
	if len(summary.Indexes) != 1 || summary.Indexes[0] != "Trigram" {
		t.Errorf("Indexes = %v, want [Trigram]", summary.Indexes)
	}
	if len(summary.StubIndexes) != 1 || summary.StubIndexes[0] != "Stubs.java" {
		t.Errorf("StubIndexes = %v, want [Stubs.java]", summary.StubIndexes)
	}
	if len(summary.EmptyIndexes) != 1 || summary.EmptyIndexes[0] != "Todo" {
		t.Errorf("EmptyIndexes = %v, want [Todo]", summary.EmptyIndexes)
	}
}
