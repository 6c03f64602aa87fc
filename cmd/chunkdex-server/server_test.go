// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/chunkdex/chunkdex/lib/fetch"
)

func writeTestDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"jdk-11.zip": "jdk fragment bytes",
		"jdk-11.zip.json": `{
			"unique_id": "jdk-11",
			"version": {"base_indexes": {"Trigram": "3"}},
			"order_entries": [{"name": "jdk", "kind": "library"}]
		}`,
		"guava-30.zip": "guava fragment bytes",
		"notes.txt":    "not a fragment",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(newRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), writeTestDir(t)))
	t.Cleanup(server.Close)
	return server
}

func TestManifestListsFragments(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.Client().Get(server.URL + "/manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %s", resp.Status)
	}

	var manifest fetch.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		t.Fatalf("decoding manifest: %v", err)
	}
	if len(manifest.Chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(manifest.Chunks))
	}

	byID := map[string]fetch.ManifestChunk{}
	for _, chunk := range manifest.Chunks {
		byID[chunk.UniqueID] = chunk
	}

	jdk, ok := byID["jdk-11"]
	if !ok {
		t.Fatal("manifest missing jdk-11")
	}
	if jdk.URL != "/fragments/jdk-11.zip" {
		t.Errorf("jdk URL = %q", jdk.URL)
	}
	if jdk.Version.BaseIndexes["Trigram"] != "3" {
		t.Errorf("jdk version = %v, sidecar not applied", jdk.Version)
	}
	if len(jdk.OrderEntries) != 1 || jdk.OrderEntries[0].Name != "jdk" {
		t.Errorf("jdk order entries = %v", jdk.OrderEntries)
	}

	guava, ok := byID["guava-30"]
	if !ok {
		t.Fatal("manifest missing sidecar-less guava-30")
	}
	if len(guava.Version.BaseIndexes) != 0 {
		t.Errorf("guava version = %v, want empty", guava.Version)
	}
}

func TestServeFragment(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.Client().Get(server.URL + "/fragments/jdk-11.zip")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %s", resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "jdk fragment bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestNonFragmentFilesNotServed(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.Client().Get(server.URL + "/fragments/notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %s, want 404", resp.Status)
	}
}

func TestUnknownFragment(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.Client().Get(server.URL + "/fragments/missing.zip")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %s, want 404", resp.Status)
	}
}
