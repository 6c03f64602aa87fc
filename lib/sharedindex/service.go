// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/chunkdex/chunkdex/lib/chunkhash"
	"github.com/chunkdex/chunkdex/lib/chunkzip"
	"github.com/chunkdex/chunkdex/lib/clock"
	"github.com/chunkdex/chunkdex/lib/enumerator"
)

// On-disk names inside the cache root.
const (
	descriptorsFileName = "descriptors"
	archiveFileName     = "chunks.zip"
)

// ErrServiceClosed is returned by loads scheduled after Close.
var ErrServiceClosed = errors.New("shared index service is closed")

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Root is the cache directory. Created if missing.
	Root string

	// Version is the host's infrastructure version. Chunks built
	// against a different version are attached for dedup only.
	Version InfrastructureVersion

	// Kinds maps chunk directory names to engine factories.
	Kinds *KindRegistry

	// Locators are the chunk sources queried by LocateIndexes.
	Locators []Locator

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock supplies time for duration logging. Defaults to the real
	// clock.
	Clock clock.Clock

	// SameThread runs the worker inline on the caller's goroutine
	// instead of a background goroutine. For single-threaded hosts
	// and deterministic tests.
	SameThread bool
}

// Service is the shared index chunk cache. See the package
// documentation for the moving parts.
//
// All mutating operations are funneled through one sequential
// executor; registry reads may run on any goroutine.
type Service struct {
	logger   *slog.Logger
	clock    clock.Clock
	version  InfrastructureVersion
	kinds    *KindRegistry
	locators []Locator
	root     string

	descriptors *enumerator.StringEnumerator
	storage     *chunkzip.Storage
	executor    Executor

	// enumMu guards enumerators: the working set itself is mutated
	// by chunk registration and removal while lookups scan it.
	enumMu      sync.Mutex
	enumerators map[int32]*enumerator.ContentHashEnumerator

	// timestampMu guards timestamps. A chunk's timestamp, once read,
	// is immutable and cached for the process lifetime.
	timestampMu sync.Mutex
	timestamps  map[int32]int64

	// chunks maps IndexID → *sync.Map of chunk id (int32) →
	// *SharedIndexChunk. Lock-free lookups; per-chunk attachment
	// state has its own lock inside SharedIndexChunk.
	chunks sync.Map

	// stampMu guards stamps, the project → structure-stamp cache
	// that short-circuits repeated LocateIndexes calls. Entries are
	// evicted explicitly in ProjectClosed.
	stampMu sync.Mutex
	stamps  map[Project]uint64

	closeOnce sync.Once
}

// NewService opens (or initializes) the cache at cfg.Root.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("shared index cache root not set")
	}
	if cfg.Kinds == nil {
		return nil, fmt.Errorf("shared index kind registry not set")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root %s: %w", cfg.Root, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	descriptors, err := enumerator.OpenStringEnumerator(filepath.Join(cfg.Root, descriptorsFileName))
	if err != nil {
		return nil, fmt.Errorf("opening descriptor enumerator: %w", err)
	}

	storage, err := chunkzip.Open(filepath.Join(cfg.Root, archiveFileName))
	if err != nil {
		descriptors.Close()
		return nil, fmt.Errorf("opening chunk archive: %w", err)
	}

	var executor Executor
	if cfg.SameThread {
		executor = SameThreadExecutor{}
	} else {
		executor = NewSerialExecutor()
	}

	return &Service{
		logger:      logger,
		clock:       clk,
		version:     cfg.Version,
		kinds:       cfg.Kinds,
		locators:    cfg.Locators,
		root:        cfg.Root,
		descriptors: descriptors,
		storage:     storage,
		executor:    executor,
		enumerators: make(map[int32]*enumerator.ContentHashEnumerator),
		timestamps:  make(map[int32]int64),
		stamps:      make(map[Project]uint64),
	}, nil
}

// TryEnumerateContentHash looks hash up across every loaded chunk's
// content hash table. The first chunk containing the hash wins; the
// result combines that chunk's id with the hash's chunk-local id.
// Returns NullHashID when no loaded chunk contains the hash.
//
// Iteration order over the enumerators is map order — a hash present
// in several chunks resolves to an arbitrary but valid owner.
func (s *Service) TryEnumerateContentHash(hash chunkhash.Hash) int64 {
	s.enumMu.Lock()
	defer s.enumMu.Unlock()

	for chunkID, enum := range s.enumerators {
		if localID := enum.TryEnumerate(hash); localID != 0 {
			return GlobalHashID(chunkID, localID)
		}
	}
	return NullHashID
}

// Load is the completion signal of an asynchronous chunk preload. It
// resolves after download, append, and sync finish, or after a
// terminal failure or cancellation.
type Load struct {
	done chan struct{}
	err  error
}

// Done is closed when the load has finished.
func (l *Load) Done() <-chan struct{} { return l.done }

// Err returns the terminal error. Only valid after Done is closed.
// Cancellation surfaces as context.Canceled (or DeadlineExceeded), a
// load scheduled after Close as ErrServiceClosed; any other failure
// was logged by the worker and reported as nil so one bad chunk does
// not fail a batch.
func (l *Load) Err() error {
	<-l.done
	return l.err
}

// PreloadChunk schedules a download-and-append of descriptor's chunk
// on the sequential worker. If the chunk is already registered the
// load completes immediately without downloading.
func (s *Service) PreloadChunk(ctx context.Context, descriptor ChunkDescriptor) *Load {
	load := &Load{done: make(chan struct{})}
	accepted := s.executor.Execute(func() {
		load.err = s.loadChunk(ctx, descriptor)
		close(load.done)
	})
	if !accepted {
		load.err = ErrServiceClosed
		close(load.done)
	}
	return load
}

// loadChunk runs on the sequential worker: skip if registered,
// download to a temp path, append into the archive, delete the temp
// file unconditionally, then sync the read view.
//
// Only cancellation is returned; any other failure is logged and
// swallowed so the remaining chunks of a batch still load.
func (s *Service) loadChunk(ctx context.Context, descriptor ChunkDescriptor) error {
	uniqueID := descriptor.ChunkUniqueID()
	if s.descriptors.IDOf(uniqueID) != NullChunkID {
		return nil
	}

	start := s.clock.Now()
	tempPath := filepath.Join(s.root, uniqueID+"_temp.zip")

	err := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := descriptor.Download(ctx, tempPath); err != nil {
			return fmt.Errorf("downloading chunk %s: %w", uniqueID, err)
		}

		metadata, err := MarshalMetadata(&ChunkMetadata{
			UniqueID:     uniqueID,
			Version:      descriptor.SupportedVersion(),
			OrderEntries: descriptor.OrderEntries(),
			CreatedAt:    s.clock.Now().UnixMilli(),
		})
		if err != nil {
			return err
		}
		return s.storage.Append(tempPath, uniqueID, map[string][]byte{MetadataFileName: metadata})
	}()

	os.Remove(tempPath)
	s.logger.Info("shared index chunk download finished",
		"chunk", uniqueID, "duration", s.clock.Now().Sub(start), "failed", err != nil)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.logger.Error("failed to load shared index chunk", "chunk", uniqueID, "error", err)
		return nil
	}

	if err := s.storage.Sync(); err != nil {
		s.logger.Error("failed to sync chunk archive", "error", err)
	}
	return nil
}

// LocateIndexes schedules a locator pass for project on the
// sequential worker. It short-circuits when the project's structure
// stamp is unchanged since the last pass. Every located chunk is
// attached to the project; only version-matching chunks are
// downloaded and usable for index lookups — mismatched ones
// contribute their content hash tables to dedup and nothing else.
func (s *Service) LocateIndexes(ctx context.Context, project Project, entries []OrderEntry) {
	s.executor.Execute(func() {
		stamp := project.StructureStamp()
		s.stampMu.Lock()
		last, seen := s.stamps[project]
		s.stampMu.Unlock()
		if seen && last == stamp {
			return
		}

		for _, locator := range s.locators {
			if ctx.Err() != nil {
				return
			}

			descriptors, err := locator.LocateIndexes(ctx, project, entries)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				s.logger.Error("shared index locator failed",
					"locator", locator.Name(), "error", err)
				continue
			}

			for _, descriptor := range descriptors {
				if s.version.Matches(descriptor.SupportedVersion()) {
					s.logger.Info("found shared index",
						"chunk", descriptor.ChunkUniqueID(),
						"entries", len(descriptor.OrderEntries()))
					if err := s.loadChunk(ctx, descriptor); err != nil {
						return
					}
				} else {
					s.logger.Info("shared index version unsupported",
						"chunk", descriptor.ChunkUniqueID(),
						"chunk_version", descriptor.SupportedVersion().String(),
						"host_version", s.version.String())
				}

				if err := s.attachChunk(descriptor, project); err != nil {
					s.logger.Error("failed to attach shared index chunk",
						"chunk", descriptor.ChunkUniqueID(), "error", err)
				}
			}
		}

		s.stampMu.Lock()
		s.stamps[project] = stamp
		s.stampMu.Unlock()
	})
}

// attachChunk registers descriptor's chunk (reusing loaded state) and
// binds the resulting per-index chunks to project.
func (s *Service) attachChunk(descriptor ChunkDescriptor, project Project) error {
	chunks, err := s.registerChunk(descriptor)
	if err != nil {
		return err
	}
	s.bindChunks(chunks, project)
	return nil
}

// AttachExistingChunk binds an already-downloaded chunk to project,
// registering it first if this process has not loaded it yet. Returns
// whether any per-index chunk was bound. The null chunk id trivially
// succeeds.
func (s *Service) AttachExistingChunk(chunkID int32, project Project) bool {
	if chunkID == NullChunkID {
		return true
	}

	s.enumMu.Lock()
	_, loaded := s.enumerators[chunkID]
	s.enumMu.Unlock()

	var chunks []*SharedIndexChunk
	if loaded {
		s.chunks.Range(func(_, bucketValue any) bool {
			bucket := bucketValue.(*sync.Map)
			if chunkValue, ok := bucket.Load(chunkID); ok {
				chunks = append(chunks, chunkValue.(*SharedIndexChunk))
			}
			return true
		})
	} else {
		registered, err := s.registerChunkByID(chunkID)
		if err != nil {
			s.logger.Error("failed to register existing chunk", "chunk_id", chunkID, "error", err)
			return false
		}
		chunks = registered
	}

	return s.bindChunks(chunks, project)
}

// bindChunks attaches project to every chunk and publishes the chunks
// in the registry. The first published handle for an (index, chunk id)
// pair wins: a concurrent caller that materialized its own handle
// attaches to the published one and closes the duplicate, so no
// project reference is overwritten.
func (s *Service) bindChunks(chunks []*SharedIndexChunk, project Project) bool {
	for _, chunk := range chunks {
		bucketValue, _ := s.chunks.LoadOrStore(chunk.IndexName(), &sync.Map{})
		publishedValue, _ := bucketValue.(*sync.Map).LoadOrStore(chunk.ChunkID(), chunk)
		published := publishedValue.(*SharedIndexChunk)
		published.AttachProject(project)
		if published != chunk {
			if err := chunk.Close(); err != nil {
				s.logger.Error("failed to close duplicate chunk handle",
					"index", chunk.IndexName(), "chunk_id", chunk.ChunkID(), "error", err)
			}
		}
	}
	return len(chunks) > 0
}

// registerChunk resolves the descriptor to a chunk id, assigning one
// if this is the first registration of the descriptor.
func (s *Service) registerChunk(descriptor ChunkDescriptor) ([]*SharedIndexChunk, error) {
	uniqueID := descriptor.ChunkUniqueID()
	chunkID, err := s.descriptors.Enumerate(uniqueID)
	if err != nil {
		return nil, fmt.Errorf("enumerating chunk %s: %w", uniqueID, err)
	}
	return s.registerChunkByID(chunkID)
}

// registerChunkByID materializes every per-index chunk of the given
// chunk id from the archive's read view: open (or reuse) the content
// hash enumerator, read (or reuse) the timestamp, read the empty
// index sets, then map each chunk subdirectory to a registered index
// kind. Unknown directory names are skipped — chunks may carry
// indexes this binary does not know.
func (s *Service) registerChunkByID(chunkID int32) ([]*SharedIndexChunk, error) {
	chunkName, ok := s.descriptors.ValueOf(chunkID)
	if !ok {
		return nil, fmt.Errorf("chunk id %d is not present in the descriptor enumerator", chunkID)
	}

	view := s.storage.View()

	s.enumMu.Lock()
	hashes := s.enumerators[chunkID]
	if hashes == nil {
		opened, err := enumerator.ReadContentHashEnumerator(view, path.Join(chunkName, HashesFileName))
		if err != nil {
			s.enumMu.Unlock()
			return nil, err
		}
		hashes = opened
		s.enumerators[chunkID] = hashes
	}
	s.enumMu.Unlock()

	s.timestampMu.Lock()
	timestamp := s.timestamps[chunkID]
	if timestamp == 0 {
		read, err := ReadTimestamp(view, chunkName)
		if err != nil {
			s.timestampMu.Unlock()
			return nil, err
		}
		timestamp = read
		s.timestamps[chunkID] = timestamp
	}
	s.timestampMu.Unlock()

	emptyIndexes, err := ReadEmptyIndexNames(view, chunkName)
	if err != nil {
		return nil, err
	}
	emptyStubIndexes, err := ReadEmptyStubIndexNames(view, chunkName)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(view, chunkName)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s directory: %w", chunkName, err)
	}

	var result []*SharedIndexChunk
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirName := entry.Name()

		if kind, found := s.kinds.FindByName(dirName); found && !kind.Stub {
			chunk, err := s.openChunk(view, path.Join(chunkName, dirName), kind, chunkID, timestamp,
				emptyIndexes[dirName] || emptyStubIndexes[dirName], hashes)
			if err != nil {
				return nil, err
			}
			result = append(result, chunk)
		}

		if dirName == StubTreeDirName {
			stubChunks, err := s.registerStubChunks(view, path.Join(chunkName, dirName),
				emptyStubIndexes, chunkID, timestamp, hashes)
			if err != nil {
				return nil, err
			}
			result = append(result, stubChunks...)
		}
	}

	return result, nil
}

// registerStubChunks expands the distinguished stub tree directory:
// one nested subdirectory per stub index key.
func (s *Service) registerStubChunks(view fs.FS, stubTreePath string, emptyStubIndexes map[string]bool,
	chunkID int32, timestamp int64, hashes *enumerator.ContentHashEnumerator) ([]*SharedIndexChunk, error) {

	entries, err := fs.ReadDir(view, stubTreePath)
	if err != nil {
		return nil, fmt.Errorf("reading stub tree %s: %w", stubTreePath, err)
	}

	var result []*SharedIndexChunk
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		kind, found := s.kinds.FindByName(entry.Name())
		if !found || !kind.Stub {
			continue
		}
		chunk, err := s.openChunk(view, path.Join(stubTreePath, entry.Name()), kind, chunkID, timestamp,
			emptyStubIndexes[entry.Name()], hashes)
		if err != nil {
			return nil, err
		}
		result = append(result, chunk)
	}
	return result, nil
}

// openChunk opens one index engine over its subtree of the archive.
func (s *Service) openChunk(view fs.FS, dir string, kind IndexKind, chunkID int32, timestamp int64,
	empty bool, hashes *enumerator.ContentHashEnumerator) (*SharedIndexChunk, error) {

	subtree, err := fs.Sub(view, dir)
	if err != nil {
		return nil, fmt.Errorf("opening chunk subtree %s: %w", dir, err)
	}
	engine, err := kind.NewEngine(EngineSpec{
		Root:      subtree,
		Index:     kind.ID,
		ChunkID:   chunkID,
		Timestamp: timestamp,
		Empty:     empty,
		Hashes:    hashes,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s engine for %s: %w", kind.ID, dir, err)
	}
	return newSharedIndexChunk(kind.ID, chunkID, timestamp, empty, engine), nil
}

// ProcessChunks calls fn for every registered chunk of the given
// index until fn returns false.
func (s *Service) ProcessChunks(index IndexID, fn func(Engine) bool) {
	bucketValue, ok := s.chunks.Load(index)
	if !ok {
		return
	}
	bucketValue.(*sync.Map).Range(func(_, chunkValue any) bool {
		return fn(chunkValue.(*SharedIndexChunk).Index())
	})
}

// ChunkIndex returns the engine registered for (index, chunkID), or
// nil when absent.
func (s *Service) ChunkIndex(index IndexID, chunkID int32) Engine {
	bucketValue, ok := s.chunks.Load(index)
	if !ok {
		return nil
	}
	chunkValue, ok := bucketValue.(*sync.Map).Load(chunkID)
	if !ok {
		return nil
	}
	return chunkValue.(*SharedIndexChunk).Index()
}

// ProjectClosed detaches project from every chunk referencing it.
// Chunks whose reference set becomes empty are removed from the
// registry and closed, and content hash enumerators no longer backing
// any registered chunk are closed with them. The project's structure
// stamp entry is evicted.
func (s *Service) ProjectClosed(project Project) {
	var removed []*SharedIndexChunk
	s.chunks.Range(func(_, bucketValue any) bool {
		bucketValue.(*sync.Map).Range(func(_, chunkValue any) bool {
			chunk := chunkValue.(*SharedIndexChunk)
			if chunk.RemoveProject(project) {
				removed = append(removed, chunk)
			}
			return true
		})
		return true
	})

	candidateIDs := make(map[int32]bool)
	for _, chunk := range removed {
		candidateIDs[chunk.ChunkID()] = true
		if bucketValue, ok := s.chunks.Load(chunk.IndexName()); ok {
			bucketValue.(*sync.Map).CompareAndDelete(chunk.ChunkID(), chunk)
		}
		if err := chunk.Close(); err != nil {
			s.logger.Error("failed to close shared index chunk",
				"index", chunk.IndexName(), "chunk_id", chunk.ChunkID(), "error", err)
		}
	}

	for chunkID := range candidateIDs {
		if s.chunkIDRegistered(chunkID) {
			continue
		}
		s.enumMu.Lock()
		enum := s.enumerators[chunkID]
		delete(s.enumerators, chunkID)
		s.enumMu.Unlock()
		if enum != nil {
			if err := enum.Close(); err != nil {
				s.logger.Error("failed to close content hash enumerator",
					"chunk_id", chunkID, "error", err)
			}
		}
	}

	s.stampMu.Lock()
	delete(s.stamps, project)
	s.stampMu.Unlock()
}

// chunkIDRegistered reports whether any index still holds a chunk
// with the given id.
func (s *Service) chunkIDRegistered(chunkID int32) bool {
	registered := false
	s.chunks.Range(func(_, bucketValue any) bool {
		if _, ok := bucketValue.(*sync.Map).Load(chunkID); ok {
			registered = true
			return false
		}
		return true
	})
	return registered
}

// Close drains the worker and releases the archive and the descriptor
// enumerator. Best-effort: teardown failures are logged, not
// propagated. Safe to call more than once.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if serial, ok := s.executor.(*SerialExecutor); ok {
			serial.Close()
		}
		if err := s.descriptors.Close(); err != nil {
			s.logger.Error("failed to close descriptor enumerator", "error", err)
		}
		if err := s.storage.Close(); err != nil {
			s.logger.Error("failed to close chunk archive", "error", err)
		}
	})
}
