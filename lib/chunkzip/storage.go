// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkzip implements the shared archive that holds every
// downloaded chunk's directory tree. The archive is a single zip file
// with all entries stored uncompressed, so the read view can serve
// random access without inflating. Appends go through a temp file and
// an atomic rename; the read view only advances when Sync is called,
// so readers never observe a partially appended chunk.
package chunkzip

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zip"
)

// Storage is the append-only chunk archive plus its read-only view.
//
// Mutations (Append) are expected to be serialized by the caller's
// single background worker. The read view may be used from any
// goroutine; superseded archive generations stay open until Close so
// a view handed out before an append remains readable.
type Storage struct {
	path string

	mu      sync.RWMutex
	file    *os.File
	reader  *zip.Reader
	retired []*os.File
}

// Open opens the archive at path, creating an empty one if the file
// does not exist.
func Open(archivePath string) (*Storage, error) {
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		if err := writeEmptyArchive(archivePath); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stating archive %s: %w", archivePath, err)
	}

	storage := &Storage{path: archivePath}
	if err := storage.openCurrent(); err != nil {
		return nil, err
	}
	return storage, nil
}

func writeEmptyArchive(archivePath string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	file, err := os.OpenFile(archivePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", archivePath, err)
	}
	writer := zip.NewWriter(file)
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("finalizing empty archive: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing empty archive: %w", err)
	}
	return nil
}

// openCurrent opens the archive file at s.path and replaces the read
// view. The previous file handle, if any, is retired rather than
// closed — views handed out earlier may still be reading it.
func (s *Storage) openCurrent() error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", s.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stating archive %s: %w", s.path, err)
	}
	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return fmt.Errorf("reading archive %s: %w", s.path, err)
	}

	s.mu.Lock()
	if s.file != nil {
		s.retired = append(s.retired, s.file)
	}
	s.file = file
	s.reader = reader
	s.mu.Unlock()
	return nil
}

// View returns the current read-only filesystem view of the archive.
// Entries appended since the last Sync are not visible.
func (s *Storage) View() fs.FS {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader
}

// Sync makes entries from completed appends visible to subsequent
// View calls. Must be called after every successful Append and before
// any registration that references the new chunk.
func (s *Storage) Sync() error {
	return s.openCurrent()
}

// Append merges a downloaded chunk fragment into the archive under
// the chunkName/ prefix. The fragment is itself a zip file; its
// entries are re-stored uncompressed so the read view keeps random
// access. The extras map contributes additional entries (metadata
// records, markers) keyed by name relative to the chunk root.
//
// The merged archive is written to a temp file and renamed over the
// old one; on any failure the old archive is untouched. New entries
// become visible only after Sync.
func (s *Storage) Append(fragmentPath, chunkName string, extras map[string][]byte) error {
	fragment, err := zip.OpenReader(fragmentPath)
	if err != nil {
		return fmt.Errorf("opening fragment %s: %w", fragmentPath, err)
	}
	defer fragment.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), "chunks-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	writer := zip.NewWriter(tmpFile)

	// Raw-copy every existing entry from the on-disk archive, not the
	// read view: the view lags behind the file when a Sync failed, and
	// copying from it would drop the entries of the last append. No
	// recompression: the entries are already stored.
	current, err := zip.OpenReader(s.path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", s.path, err)
	}
	defer current.Close()
	for _, entry := range current.File {
		if err := writer.Copy(entry); err != nil {
			return fmt.Errorf("copying archive entry %s: %w", entry.Name, err)
		}
	}

	for _, entry := range fragment.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(entry.Name)
		if !fs.ValidPath(name) || name == "." {
			return fmt.Errorf("fragment entry %s escapes chunk directory %s", entry.Name, chunkName)
		}
		if err := appendStored(writer, path.Join(chunkName, name), entry); err != nil {
			return err
		}
	}

	// Extras in sorted order so the archive bytes are deterministic
	// for a given append.
	extraNames := make([]string, 0, len(extras))
	for name := range extras {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		target, err := writer.CreateHeader(&zip.FileHeader{
			Name:   path.Join(chunkName, name),
			Method: zip.Store,
		})
		if err != nil {
			return fmt.Errorf("creating archive entry %s: %w", name, err)
		}
		if _, err := target.Write(extras[name]); err != nil {
			return fmt.Errorf("writing archive entry %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing archive append: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming archive: %w", err)
	}

	success = true
	return nil
}

// appendStored writes one fragment entry into the archive writer,
// decompressing it if the fragment compressed it for transfer.
func appendStored(writer *zip.Writer, name string, entry *zip.File) error {
	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening fragment entry %s: %w", entry.Name, err)
	}
	defer source.Close()

	target, err := writer.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: entry.Modified,
	})
	if err != nil {
		return fmt.Errorf("creating archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(target, source); err != nil {
		return fmt.Errorf("writing archive entry %s: %w", name, err)
	}
	return nil
}

// EntryNames returns the names of all entries visible in the current
// read view, in archive order.
func (s *Storage) EntryNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.reader.File))
	for _, entry := range s.reader.File {
		names = append(names, entry.Name)
	}
	return names
}

// Close releases the current archive handle and every retired
// generation. Call exactly once at shutdown.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing archive: %w", err)
		}
		s.file = nil
		s.reader = nil
	}
	for _, retired := range s.retired {
		if err := retired.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing retired archive handle: %w", err)
		}
	}
	s.retired = nil
	return firstErr
}
