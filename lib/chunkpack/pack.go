// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package chunkpack

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/chunkdex/chunkdex/lib/chunkhash"
	"github.com/chunkdex/chunkdex/lib/enumerator"
	"github.com/chunkdex/chunkdex/lib/sharedindex"
)

// IndexInput is one index's contribution to a fragment.
type IndexInput struct {
	// Name is the index directory name inside the chunk.
	Name string

	// Stub places the index under the stub tree directory.
	Stub bool

	// Files maps entry names (relative to the index directory) to
	// their payload.
	Files map[string][]byte

	// Empty marks the index as built-but-empty. Empty indexes are
	// listed in the chunk's empty-index manifest so consumers can
	// skip opening them.
	Empty bool
}

// Input describes the fragment to build.
type Input struct {
	// Timestamp is the chunk build time in Unix milliseconds. Must
	// be positive.
	Timestamp int64

	// Hashes is the chunk's content hash table, in enumeration
	// order. Duplicates keep their first id.
	Hashes []chunkhash.Hash

	// Indexes are the per-index payloads.
	Indexes []IndexInput
}

// Pack writes a chunk fragment archive to outPath. The write is
// atomic: the fragment is staged next to outPath and renamed into
// place.
func Pack(input Input, outPath string) error {
	if input.Timestamp <= 0 {
		return fmt.Errorf("fragment timestamp must be positive, got %d", input.Timestamp)
	}
	for _, index := range input.Indexes {
		if index.Name == "" {
			return fmt.Errorf("fragment index with empty name")
		}
		if !index.Stub && index.Name == sharedindex.StubTreeDirName {
			return fmt.Errorf("index name %q is reserved for the stub tree", index.Name)
		}
	}

	staging, err := os.MkdirTemp(filepath.Dir(outPath), "chunkpack-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := buildTree(input, staging); err != nil {
		return err
	}
	return writeArchive(staging, outPath)
}

// buildTree lays the fragment out as real files under dir, using the
// same writers the chunk cache reads with.
func buildTree(input Input, dir string) error {
	hashes, err := enumerator.OpenContentHashEnumerator(filepath.Join(dir, sharedindex.HashesFileName))
	if err != nil {
		return err
	}
	for _, hash := range input.Hashes {
		if _, err := hashes.Enumerate(hash); err != nil {
			hashes.Close()
			return err
		}
	}
	if err := hashes.Close(); err != nil {
		return err
	}

	if err := sharedindex.WriteTimestamp(dir, input.Timestamp); err != nil {
		return err
	}

	var emptyIndexes, emptyStubIndexes []string
	for _, index := range input.Indexes {
		indexDir := filepath.Join(dir, index.Name)
		if index.Stub {
			indexDir = filepath.Join(dir, sharedindex.StubTreeDirName, index.Name)
		}
		if err := os.MkdirAll(indexDir, 0o755); err != nil {
			return err
		}
		for name, payload := range index.Files {
			filePath := filepath.Join(indexDir, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filePath, payload, 0o644); err != nil {
				return err
			}
		}
		if index.Empty {
			if index.Stub {
				emptyStubIndexes = append(emptyStubIndexes, index.Name)
			} else {
				emptyIndexes = append(emptyIndexes, index.Name)
			}
		}
	}

	if err := sharedindex.WriteEmptyIndexNames(dir, emptyIndexes); err != nil {
		return err
	}
	return sharedindex.WriteEmptyStubIndexNames(dir, emptyStubIndexes)
}

// writeArchive zips the staged tree into outPath. Entries are written
// in lexical path order with deflate compression, so identical inputs
// produce identical fragments.
func writeArchive(dir, outPath string) error {
	temp, err := os.CreateTemp(filepath.Dir(outPath), ".fragment-*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	writer := zip.NewWriter(temp)
	err = filepath.WalkDir(dir, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, filePath)
		if err != nil {
			return err
		}
		out, err := writer.CreateHeader(&zip.FileHeader{
			Name:   path.Clean(filepath.ToSlash(rel)),
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		in, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(out, in)
		return err
	})
	if err != nil {
		temp.Close()
		return fmt.Errorf("writing fragment archive: %w", err)
	}
	if err := writer.Close(); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}
	return os.Rename(tempPath, outPath)
}

// Summary describes a fragment's contents.
type Summary struct {
	Timestamp        int64
	HashCount        int
	Indexes          []string
	StubIndexes      []string
	EmptyIndexes     []string
	EmptyStubIndexes []string
}

// Inspect reads a fragment archive and summarizes it.
func Inspect(fragmentPath string) (*Summary, error) {
	reader, err := zip.OpenReader(fragmentPath)
	if err != nil {
		return nil, fmt.Errorf("opening fragment %s: %w", fragmentPath, err)
	}
	defer reader.Close()

	timestamp, err := sharedindex.ReadTimestamp(&reader.Reader, ".")
	if err != nil {
		return nil, err
	}
	hashes, err := enumerator.ReadContentHashEnumerator(&reader.Reader, sharedindex.HashesFileName)
	if err != nil {
		return nil, err
	}
	emptyIndexes, err := sharedindex.ReadEmptyIndexNames(&reader.Reader, ".")
	if err != nil {
		return nil, err
	}
	emptyStubIndexes, err := sharedindex.ReadEmptyStubIndexNames(&reader.Reader, ".")
	if err != nil {
		return nil, err
	}

	indexes := make(map[string]bool)
	stubIndexes := make(map[string]bool)
	for _, file := range reader.File {
		name := path.Clean(file.Name)
		parts := strings.Split(name, "/")
		if len(parts) < 2 {
			continue
		}
		if parts[0] == sharedindex.StubTreeDirName {
			if len(parts) >= 3 {
				stubIndexes[parts[1]] = true
			}
			continue
		}
		indexes[parts[0]] = true
	}

	return &Summary{
		Timestamp:        timestamp,
		HashCount:        hashes.Len(),
		Indexes:          sortedKeys(indexes),
		StubIndexes:      sortedKeys(stubIndexes),
		EmptyIndexes:     sortedKeys(emptyIndexes),
		EmptyStubIndexes: sortedKeys(emptyStubIndexes),
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
