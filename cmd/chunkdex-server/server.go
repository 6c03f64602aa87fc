// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chunkdex/chunkdex/lib/fetch"
)

// fragmentServer serves a directory of chunk fragments and the
// manifest describing them.
//
// Each fragment <name>.zip may carry a <name>.zip.json sidecar with
// its manifest entry (written by "chunkdex pack"). Fragments without
// a sidecar are listed with the file name as unique id and no version
// or order entry information.
type fragmentServer struct {
	logger *slog.Logger
	dir    string
}

func newRouter(logger *slog.Logger, fragmentDir string) http.Handler {
	server := &fragmentServer{logger: logger, dir: fragmentDir}
	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Get("/manifest.json", server.handleManifest)
	router.Get("/fragments/{name}", server.handleFragment)
	return router
}

func (s *fragmentServer) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.buildManifest()
	if err != nil {
		s.logger.Error("building manifest", "error", err)
		http.Error(w, "manifest unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(manifest); err != nil {
		s.logger.Error("encoding manifest", "error", err)
	}
}

func (s *fragmentServer) buildManifest() (*fetch.Manifest, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading fragment directory %s: %w", s.dir, err)
	}

	manifest := &fetch.Manifest{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isFragmentName(name) {
			continue
		}
		chunk := fetch.ManifestChunk{UniqueID: strings.TrimSuffix(name, ".zip")}
		sidecar, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
		switch {
		case err == nil:
			if err := json.Unmarshal(sidecar, &chunk); err != nil {
				return nil, fmt.Errorf("parsing sidecar for %s: %w", name, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
		chunk.URL = "/fragments/" + name
		manifest.Chunks = append(manifest.Chunks, chunk)
	}
	sort.Slice(manifest.Chunks, func(i, j int) bool {
		return manifest.Chunks[i].URL < manifest.Chunks[j].URL
	})
	return manifest, nil
}

func (s *fragmentServer) handleFragment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || !isFragmentName(name) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.dir, name))
}

// isFragmentName accepts plain and transfer-compressed fragment
// files, and rejects sidecars and anything else in the directory.
func isFragmentName(name string) bool {
	return strings.HasSuffix(name, ".zip") ||
		strings.HasSuffix(name, ".zip.zst") ||
		strings.HasSuffix(name, ".zip.lz4")
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.Status(),
				"bytes", wrapped.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}
