// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package enumerator

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/chunkdex/chunkdex/lib/chunkhash"
)

// Content hash record layout: hash(32) + xxhash64 of the hash
// bytes (8, LE). Fixed 40-byte records; ids are 1-based ordinals.
const hashRecordSize = 40

// ContentHashEnumerator is a persistent bidirectional map from a
// content hash to a small positive local id, scoped to one chunk.
//
// Two modes exist. The writable mode (OpenContentHashEnumerator)
// backs chunk building and appends records to a log file on disk. The
// read-only mode (ReadContentHashEnumerator) replays a log out of an
// fs.FS — typically the shared archive's read view — and holds no
// file handle; TryEnumerate works, Enumerate fails.
//
// Safe for concurrent use.
type ContentHashEnumerator struct {
	mu      sync.Mutex
	file    *os.File // nil in read-only mode
	forward map[chunkhash.Hash]int32
	reverse []chunkhash.Hash
}

// OpenContentHashEnumerator opens (or creates) a writable enumerator
// log at path. A corrupt tail is truncated, as for the string
// enumerator.
func OpenContentHashEnumerator(path string) (*ContentHashEnumerator, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening content hash log %s: %w", path, err)
	}

	enum := &ContentHashEnumerator{
		file:    file,
		forward: make(map[chunkhash.Hash]int32),
	}

	validOffset := enum.replay(file)
	if err := file.Truncate(validOffset); err != nil {
		file.Close()
		return nil, fmt.Errorf("truncating content hash log %s: %w", path, err)
	}
	if _, err := file.Seek(validOffset, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seeking content hash log %s: %w", path, err)
	}

	return enum, nil
}

// ReadContentHashEnumerator replays the enumerator log stored at name
// within fsys and returns a read-only enumerator. The source is read
// once and then released — the returned enumerator holds only the
// in-memory maps.
func ReadContentHashEnumerator(fsys fs.FS, name string) (*ContentHashEnumerator, error) {
	source, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening content hash table %s: %w", name, err)
	}
	defer source.Close()

	enum := &ContentHashEnumerator{
		forward: make(map[chunkhash.Hash]int32),
	}
	enum.replay(source)
	return enum, nil
}

// replay reads fixed-size records until EOF or the first checksum
// failure. Returns the offset just past the last valid record.
func (e *ContentHashEnumerator) replay(r io.Reader) int64 {
	var offset int64
	var record [hashRecordSize]byte
	for {
		if _, err := io.ReadFull(r, record[:]); err != nil {
			return offset
		}

		expected := binary.LittleEndian.Uint64(record[32:40])
		if xxhash.Sum64(record[:32]) != expected {
			return offset
		}

		var hash chunkhash.Hash
		copy(hash[:], record[:32])
		e.reverse = append(e.reverse, hash)
		e.forward[hash] = int32(len(e.reverse))
		offset += hashRecordSize
	}
}

// TryEnumerate returns the local id for hash without mutating the
// enumerator, or 0 if the hash is not present.
func (e *ContentHashEnumerator) TryEnumerate(hash chunkhash.Hash) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.forward[hash]
}

// Enumerate returns the local id for hash, assigning and persisting a
// new one if absent. Fails on a read-only enumerator.
func (e *ContentHashEnumerator) Enumerate(hash chunkhash.Hash) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.forward[hash]; ok {
		return id, nil
	}
	if e.file == nil {
		return 0, fmt.Errorf("content hash enumerator is read-only")
	}

	var record [hashRecordSize]byte
	copy(record[:32], hash[:])
	binary.LittleEndian.PutUint64(record[32:40], xxhash.Sum64(hash[:]))

	if _, err := e.file.Write(record[:]); err != nil {
		return 0, fmt.Errorf("appending content hash record: %w", err)
	}

	e.reverse = append(e.reverse, hash)
	id := int32(len(e.reverse))
	e.forward[hash] = id
	return id, nil
}

// ValueOf returns the hash owning the given local id.
func (e *ContentHashEnumerator) ValueOf(id int32) (chunkhash.Hash, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id < 1 || int(id) > len(e.reverse) {
		return chunkhash.Hash{}, false
	}
	return e.reverse[id-1], true
}

// Len returns the number of assigned local ids.
func (e *ContentHashEnumerator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reverse)
}

// Close releases the backing log in writable mode. On a read-only
// enumerator it only drops the maps' contents from further use.
func (e *ContentHashEnumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	if err := e.file.Sync(); err != nil {
		e.file.Close()
		e.file = nil
		return fmt.Errorf("syncing content hash log: %w", err)
	}
	err := e.file.Close()
	e.file = nil
	if err != nil {
		return fmt.Errorf("closing content hash log: %w", err)
	}
	return nil
}
