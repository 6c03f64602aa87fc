// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package enumerator

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// String record layout: length(4, LE) + name bytes + xxhash64 of the
// name bytes (8, LE). Ids are 1-based ordinals, so record N in the
// log owns id N.
const (
	stringRecordOverhead = 12

	// maxNameLength bounds a single record so a corrupt length field
	// cannot make replay allocate gigabytes.
	maxNameLength = 1 << 16
)

// StringEnumerator is a persistent bidirectional string ↔ id map.
// Enumerate is idempotent: the first call for a name appends a record
// and assigns the next id; every later call returns the same id. Id 0
// is never assigned — callers use it as the "not registered" sentinel.
//
// Safe for concurrent use.
type StringEnumerator struct {
	mu      sync.Mutex
	file    *os.File
	forward map[string]int32
	reverse []string // index i holds the name owning id i+1
}

// OpenStringEnumerator opens (or creates) the enumerator log at path
// and replays it. A corrupt tail is truncated away so future appends
// start at a record boundary; records before the corruption are kept.
func OpenStringEnumerator(path string) (*StringEnumerator, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening enumerator log %s: %w", path, err)
	}

	enum := &StringEnumerator{
		file:    file,
		forward: make(map[string]int32),
	}

	validOffset, err := enum.replay()
	if err != nil {
		file.Close()
		return nil, err
	}

	// Discard a torn tail and position the write cursor after the
	// last valid record.
	if err := file.Truncate(validOffset); err != nil {
		file.Close()
		return nil, fmt.Errorf("truncating enumerator log %s: %w", path, err)
	}
	if _, err := file.Seek(validOffset, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seeking enumerator log %s: %w", path, err)
	}

	return enum, nil
}

// replay reads records from the start of the file, populating the
// maps. Returns the offset just past the last valid record.
func (e *StringEnumerator) replay() (int64, error) {
	if _, err := e.file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seeking enumerator log: %w", err)
	}

	var offset int64
	var lengthBytes [4]byte
	for {
		if _, err := io.ReadFull(e.file, lengthBytes[:]); err != nil {
			// EOF at a record boundary, or a torn length field —
			// either way replay stops here.
			return offset, nil
		}

		length := binary.LittleEndian.Uint32(lengthBytes[:])
		if length == 0 || length > maxNameLength {
			return offset, nil
		}

		body := make([]byte, length+8)
		if _, err := io.ReadFull(e.file, body); err != nil {
			return offset, nil
		}

		name := body[:length]
		expected := binary.LittleEndian.Uint64(body[length:])
		if xxhash.Sum64(name) != expected {
			return offset, nil
		}

		e.reverse = append(e.reverse, string(name))
		e.forward[string(name)] = int32(len(e.reverse))
		offset += int64(stringRecordOverhead) + int64(length)
	}
}

// Enumerate returns the id for name, assigning and persisting a new
// one if the name has not been seen before.
func (e *StringEnumerator) Enumerate(name string) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.forward[name]; ok {
		return id, nil
	}
	if len(name) == 0 || len(name) > maxNameLength {
		return 0, fmt.Errorf("enumerator name length %d out of range", len(name))
	}

	record := make([]byte, stringRecordOverhead+len(name))
	binary.LittleEndian.PutUint32(record[0:4], uint32(len(name)))
	copy(record[4:], name)
	binary.LittleEndian.PutUint64(record[4+len(name):], xxhash.Sum64String(name))

	if _, err := e.file.Write(record); err != nil {
		return 0, fmt.Errorf("appending enumerator record: %w", err)
	}

	e.reverse = append(e.reverse, name)
	id := int32(len(e.reverse))
	e.forward[name] = id
	return id, nil
}

// IDOf returns the id for name without mutating the enumerator, or 0
// if the name has never been enumerated.
func (e *StringEnumerator) IDOf(name string) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.forward[name]
}

// ValueOf returns the name owning id, or "" and false if the id has
// not been assigned.
func (e *StringEnumerator) ValueOf(id int32) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id < 1 || int(id) > len(e.reverse) {
		return "", false
	}
	return e.reverse[id-1], true
}

// Len returns the number of assigned ids.
func (e *StringEnumerator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reverse)
}

// Close syncs and closes the backing log.
func (e *StringEnumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	if err := e.file.Sync(); err != nil {
		e.file.Close()
		e.file = nil
		return fmt.Errorf("syncing enumerator log: %w", err)
	}
	err := e.file.Close()
	e.file = nil
	if err != nil {
		return fmt.Errorf("closing enumerator log: %w", err)
	}
	return nil
}
