// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/chunkdex/chunkdex/cmd/chunkdex/cli"
	"github.com/chunkdex/chunkdex/lib/chunkhash"
	"github.com/chunkdex/chunkdex/lib/chunkpack"
	"github.com/chunkdex/chunkdex/lib/fetch"
	"github.com/chunkdex/chunkdex/lib/sharedindex"
)

// packSpec is the YAML document the pack command consumes.
type packSpec struct {
	// UniqueID is the chunk's stable identifier.
	UniqueID string `yaml:"unique_id"`

	// Timestamp is the chunk build time in Unix milliseconds.
	// Defaults to the current time.
	Timestamp int64 `yaml:"timestamp"`

	// Version maps base index names to their version tags.
	Version map[string]string `yaml:"version"`

	// OrderEntries lists the dependency units the chunk covers.
	OrderEntries []orderEntrySpec `yaml:"order_entries"`

	// HashFiles are files whose content goes into the chunk's
	// content hash table, in order.
	HashFiles []string `yaml:"hash_files"`

	// Indexes are the per-index payload directories.
	Indexes []indexSpec `yaml:"indexes"`
}

type orderEntrySpec struct {
	Name  string   `yaml:"name"`
	Kind  string   `yaml:"kind"`
	Roots []string `yaml:"roots"`
}

type indexSpec struct {
	Name  string `yaml:"name"`
	Stub  bool   `yaml:"stub"`
	Empty bool   `yaml:"empty"`

	// Dir is the directory whose tree becomes the index payload.
	Dir string `yaml:"dir"`
}

func packCommand() *cli.Command {
	var specPath, outPath string
	var noSidecar bool
	return &cli.Command{
		Name:    "pack",
		Summary: "Build a chunk fragment from a pack spec",
		Description: `Build a downloadable chunk fragment archive.

The pack spec is a YAML file naming the chunk, its infrastructure
version, the files to hash into its content hash table, and the
per-index payload directories. Alongside the fragment, pack writes a
JSON sidecar with the chunk's manifest entry; the chunkdex-server
binary reads sidecars to assemble its manifest.`,
		Examples: []cli.Example{
			{Description: "Build jdk-11.zip from spec.yaml", Command: "chunkdex pack --spec spec.yaml --out jdk-11.zip"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("pack", pflag.ContinueOnError)
			flags.StringVar(&specPath, "spec", "", "pack spec YAML file (required)")
			flags.StringVar(&outPath, "out", "", "output fragment path (required)")
			flags.BoolVar(&noSidecar, "no-sidecar", false, "skip writing the manifest sidecar")
			return flags
		},
		Run: func(args []string) error {
			if specPath == "" || outPath == "" {
				return fmt.Errorf("--spec and --out are required")
			}
			return runPack(specPath, outPath, !noSidecar)
		},
	}
}

func runPack(specPath, outPath string, sidecar bool) error {
	raw, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("reading pack spec: %w", err)
	}
	var spec packSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return fmt.Errorf("parsing pack spec %s: %w", specPath, err)
	}
	if spec.UniqueID == "" {
		return fmt.Errorf("pack spec %s: unique_id is required", specPath)
	}
	if spec.Timestamp == 0 {
		spec.Timestamp = time.Now().UnixMilli()
	}

	input := chunkpack.Input{Timestamp: spec.Timestamp}
	for _, hashFile := range spec.HashFiles {
		content, err := os.ReadFile(hashFile)
		if err != nil {
			return fmt.Errorf("reading hash file: %w", err)
		}
		input.Hashes = append(input.Hashes, chunkhash.HashContent(content))
	}
	for _, index := range spec.Indexes {
		files := map[string][]byte{}
		if index.Dir != "" {
			files, err = readTree(index.Dir)
			if err != nil {
				return fmt.Errorf("index %s: %w", index.Name, err)
			}
		}
		input.Indexes = append(input.Indexes, chunkpack.IndexInput{
			Name:  index.Name,
			Stub:  index.Stub,
			Empty: index.Empty,
			Files: files,
		})
	}

	if err := chunkpack.Pack(input, outPath); err != nil {
		return err
	}
	fmt.Printf("packed %s (%d hashes, %d indexes)\n", outPath, len(input.Hashes), len(input.Indexes))

	if !sidecar {
		return nil
	}
	entries := make([]sharedindex.OrderEntry, 0, len(spec.OrderEntries))
	for _, entry := range spec.OrderEntries {
		entries = append(entries, sharedindex.OrderEntry{Name: entry.Name, Kind: entry.Kind, Roots: entry.Roots})
	}
	manifestEntry := fetch.ManifestChunk{
		UniqueID:     spec.UniqueID,
		Version:      sharedindex.InfrastructureVersion{BaseIndexes: spec.Version},
		OrderEntries: entries,
	}
	encoded, err := json.MarshalIndent(manifestEntry, "", "  ")
	if err != nil {
		return err
	}
	sidecarPath := outPath + ".json"
	if err := os.WriteFile(sidecarPath, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing sidecar %s: %w", sidecarPath, err)
	}
	fmt.Printf("wrote %s\n", sidecarPath)
	return nil
}

// readTree loads every file under dir keyed by slash-separated
// relative path.
func readTree(dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(filePath string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, filePath)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading payload tree %s: %w", dir, err)
	}
	return files, nil
}
