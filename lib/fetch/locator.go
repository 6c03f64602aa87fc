// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/chunkdex/chunkdex/lib/sharedindex"
)

// Manifest is the document a locator endpoint serves. It lists every
// chunk the endpoint offers.
type Manifest struct {
	Chunks []ManifestChunk `json:"chunks"`
}

// ManifestChunk is one offered chunk.
type ManifestChunk struct {
	UniqueID     string                            `json:"unique_id"`
	Version      sharedindex.InfrastructureVersion `json:"version"`
	OrderEntries []sharedindex.OrderEntry          `json:"order_entries,omitempty"`

	// URL locates the fragment archive. Relative URLs resolve
	// against the manifest URL.
	URL string `json:"url"`
}

// HTTPLocator finds chunks by polling a manifest endpoint. It
// implements sharedindex.Locator.
type HTTPLocator struct {
	name        string
	manifestURL string
	client      *http.Client
}

// NewHTTPLocator builds a locator for the given manifest URL. A nil
// client uses http.DefaultClient.
func NewHTTPLocator(name, manifestURL string, client *http.Client) *HTTPLocator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLocator{name: name, manifestURL: manifestURL, client: client}
}

// Name implements sharedindex.Locator.
func (l *HTTPLocator) Name() string { return l.name }

// LocateIndexes fetches the manifest and returns descriptors for the
// chunks that cover at least one of the requested order entries. An
// empty entry list matches every chunk; so does a manifest chunk that
// declares no order entries.
func (l *HTTPLocator) LocateIndexes(ctx context.Context, project sharedindex.Project,
	entries []sharedindex.OrderEntry) ([]sharedindex.ChunkDescriptor, error) {

	manifest, err := l.fetchManifest(ctx)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(entries))
	for _, entry := range entries {
		requested[entry.Name] = true
	}

	var descriptors []sharedindex.ChunkDescriptor
	for _, chunk := range manifest.Chunks {
		if !covers(chunk, requested) {
			continue
		}
		fragmentURL, err := l.resolve(chunk.URL)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.UniqueID, err)
		}
		descriptors = append(descriptors, &remoteDescriptor{
			chunk:       chunk,
			fragmentURL: fragmentURL,
			client:      l.client,
		})
	}
	return descriptors, nil
}

func (l *HTTPLocator) fetchManifest(ctx context.Context) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest %s: %w", l.manifestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching manifest %s: unexpected status %s", l.manifestURL, resp.Status)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", l.manifestURL, err)
	}
	return &manifest, nil
}

func (l *HTTPLocator) resolve(fragmentURL string) (string, error) {
	base, err := url.Parse(l.manifestURL)
	if err != nil {
		return "", fmt.Errorf("parsing manifest URL: %w", err)
	}
	ref, err := url.Parse(fragmentURL)
	if err != nil {
		return "", fmt.Errorf("parsing fragment URL %q: %w", fragmentURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// covers reports whether the chunk serves any of the requested order
// entries.
func covers(chunk ManifestChunk, requested map[string]bool) bool {
	if len(requested) == 0 || len(chunk.OrderEntries) == 0 {
		return true
	}
	for _, entry := range chunk.OrderEntries {
		if requested[entry.Name] {
			return true
		}
	}
	return false
}

// remoteDescriptor implements sharedindex.ChunkDescriptor for a
// manifest entry.
type remoteDescriptor struct {
	chunk       ManifestChunk
	fragmentURL string
	client      *http.Client
}

func (d *remoteDescriptor) ChunkUniqueID() string { return d.chunk.UniqueID }

func (d *remoteDescriptor) SupportedVersion() sharedindex.InfrastructureVersion {
	return d.chunk.Version
}

func (d *remoteDescriptor) OrderEntries() []sharedindex.OrderEntry { return d.chunk.OrderEntries }

func (d *remoteDescriptor) Download(ctx context.Context, dest string) error {
	return Download(ctx, d.client, d.fragmentURL, dest)
}
