// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Download fetches url into dest, decoding any transfer compression
// on the way. The write is atomic: the payload is staged next to dest
// and renamed into place, so a cancelled or failed download never
// leaves a partial file at dest.
func Download(ctx context.Context, client *http.Client, url, dest string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building fragment request: %w", err)
	}
	// Opt out of transparent gzip so Content-Encoding reaches us
	// unmodified for the decoder choice below.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching fragment %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching fragment %s: unexpected status %s", url, resp.Status)
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"), url)
	if err != nil {
		return err
	}
	defer body.Close()

	temp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if _, err := io.Copy(temp, body); err != nil {
		temp.Close()
		return fmt.Errorf("writing fragment to %s: %w", dest, err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}
	return os.Rename(tempPath, dest)
}

// decodeBody wraps the response body with the decoder implied by the
// Content-Encoding header, or by the URL extension when the header is
// absent or "identity".
func decodeBody(body io.ReadCloser, encoding, url string) (io.ReadCloser, error) {
	switch encoding {
	case "zstd":
		return newZstdReader(body)
	case "lz4":
		return readCloser{lz4.NewReader(body), body}, nil
	case "", "identity":
	default:
		return nil, fmt.Errorf("unsupported fragment content encoding %q", encoding)
	}

	switch {
	case strings.HasSuffix(url, ".zst"):
		return newZstdReader(body)
	case strings.HasSuffix(url, ".lz4"):
		return readCloser{lz4.NewReader(body), body}, nil
	}
	return body, nil
}

func newZstdReader(body io.ReadCloser) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("opening zstd decoder: %w", err)
	}
	return zstdReadCloser{decoder, body}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type zstdReadCloser struct {
	decoder *zstd.Decoder
	body    io.Closer
}

func (r zstdReadCloser) Read(p []byte) (int, error) { return r.decoder.Read(p) }

func (r zstdReadCloser) Close() error {
	r.decoder.Close()
	return r.body.Close()
}
