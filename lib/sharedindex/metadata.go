// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chunkdex/chunkdex/lib/codec"
)

// Well-known file names inside a chunk's directory tree. Everything
// else at the chunk root is an index directory.
const (
	HashesFileName       = "hashes"
	TimestampFileName    = "timestamp"
	MetadataFileName     = "metadata"
	EmptyIndexesFileName = "empty-indexes"
	EmptyStubIndexesName = "empty-stub-indexes"
)

// ChunkMetadata is the CBOR record appended next to a chunk's files
// when the loader merges it into the shared archive. It preserves
// what the descriptor declared at download time.
type ChunkMetadata struct {
	// UniqueID is the chunk's descriptor identifier.
	UniqueID string `cbor:"unique_id"`

	// Version is the infrastructure version the chunk was built
	// against.
	Version InfrastructureVersion `cbor:"version"`

	// OrderEntries lists the dependency units the chunk covers.
	OrderEntries []OrderEntry `cbor:"order_entries,omitempty"`

	// CreatedAt is the chunk's creation time in Unix milliseconds.
	CreatedAt int64 `cbor:"created_at"`
}

// MarshalMetadata encodes a metadata record to deterministic CBOR.
func MarshalMetadata(meta *ChunkMetadata) ([]byte, error) {
	data, err := codec.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding chunk metadata: %w", err)
	}
	return data, nil
}

// ReadMetadata decodes the metadata record of the named chunk from
// the archive's read view.
func ReadMetadata(view fs.FS, chunkName string) (*ChunkMetadata, error) {
	raw, err := fs.ReadFile(view, path.Join(chunkName, MetadataFileName))
	if err != nil {
		return nil, fmt.Errorf("reading metadata of chunk %s: %w", chunkName, err)
	}
	var meta ChunkMetadata
	if err := codec.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata of chunk %s: %w", chunkName, err)
	}
	return &meta, nil
}

// ReadTimestamp reads a chunk's creation timestamp: decimal ASCII
// Unix milliseconds, UTF-8. Returns an error for a missing, empty, or
// non-numeric file — an unreadable timestamp means the chunk is
// corrupt and its registration must fail.
func ReadTimestamp(view fs.FS, chunkName string) (int64, error) {
	raw, err := fs.ReadFile(view, path.Join(chunkName, TimestampFileName))
	if err != nil {
		return 0, fmt.Errorf("reading timestamp of chunk %s: %w", chunkName, err)
	}
	timestamp, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt timestamp in chunk %s: %w", chunkName, err)
	}
	if timestamp <= 0 {
		return 0, fmt.Errorf("corrupt timestamp in chunk %s: %d", chunkName, timestamp)
	}
	return timestamp, nil
}

// WriteTimestamp writes a chunk directory's timestamp file. The build
// side counterpart of ReadTimestamp.
func WriteTimestamp(chunkDir string, timestamp int64) error {
	data := []byte(strconv.FormatInt(timestamp, 10))
	if err := os.WriteFile(filepath.Join(chunkDir, TimestampFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing timestamp: %w", err)
	}
	return nil
}

// ReadEmptyIndexNames reads the set of index names the chunk declares
// empty. A missing marker file means the empty set — chunks without
// empty indexes don't carry one.
func ReadEmptyIndexNames(view fs.FS, chunkName string) (map[string]bool, error) {
	return readNameSet(view, path.Join(chunkName, EmptyIndexesFileName))
}

// ReadEmptyStubIndexNames reads the set of stub index names the chunk
// declares empty.
func ReadEmptyStubIndexNames(view fs.FS, chunkName string) (map[string]bool, error) {
	return readNameSet(view, path.Join(chunkName, EmptyStubIndexesName))
}

func readNameSet(view fs.FS, name string) (map[string]bool, error) {
	raw, err := fs.ReadFile(view, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	set := make(map[string]bool)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			set[line] = true
		}
	}
	return set, nil
}

// WriteEmptyIndexNames writes the empty-index marker file into a
// chunk directory being built. An empty set writes nothing.
func WriteEmptyIndexNames(chunkDir string, names []string) error {
	return writeNameSet(filepath.Join(chunkDir, EmptyIndexesFileName), names)
}

// WriteEmptyStubIndexNames writes the empty-stub-index marker file.
func WriteEmptyStubIndexNames(chunkDir string, names []string) error {
	return writeNameSet(filepath.Join(chunkDir, EmptyStubIndexesName), names)
}

func writeNameSet(path string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	content := strings.Join(sorted, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
