// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/chunkdex/chunkdex/cmd/chunkdex/cli"
	"github.com/chunkdex/chunkdex/lib/chunkpack"
	"github.com/chunkdex/chunkdex/lib/chunkzip"
	"github.com/chunkdex/chunkdex/lib/sharedindex"
)

func inspectCommand() *cli.Command {
	var cachePath string
	return &cli.Command{
		Name:    "inspect",
		Summary: "Summarize chunk fragments or a chunk cache archive",
		Usage:   "chunkdex inspect (<fragment>... | --cache <archive>)",
		Examples: []cli.Example{
			{Description: "Show what a fragment contains", Command: "chunkdex inspect jdk-11.zip"},
			{Description: "List the chunks in a local cache", Command: "chunkdex inspect --cache ~/.cache/chunkdex/chunks.zip"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flags.StringVar(&cachePath, "cache", "", "inspect a chunk cache archive instead of fragments")
			return flags
		},
		Run: func(args []string) error {
			if cachePath != "" {
				return inspectCache(cachePath)
			}
			if len(args) == 0 {
				return fmt.Errorf("at least one fragment path is required")
			}
			return inspectFragments(args)
		},
	}
}

func inspectFragments(paths []string) error {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "FRAGMENT\tBUILT\tHASHES\tINDEXES\tSTUB INDEXES\tEMPTY")
	for _, fragmentPath := range paths {
		summary, err := chunkpack.Inspect(fragmentPath)
		if err != nil {
			return err
		}
		empty := append(append([]string{}, summary.EmptyIndexes...), summary.EmptyStubIndexes...)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			fragmentPath, formatMillis(summary.Timestamp), summary.HashCount,
			joinOrDash(summary.Indexes), joinOrDash(summary.StubIndexes), joinOrDash(empty))
	}
	return nil
}

// inspectCache lists the chunks in a cache archive with the metadata
// the loader recorded at append time.
func inspectCache(archivePath string) error {
	// Open would create an empty archive at a missing path; stat
	// first so inspect stays read-only.
	if _, err := os.Stat(archivePath); err != nil {
		return err
	}
	storage, err := chunkzip.Open(archivePath)
	if err != nil {
		return err
	}
	defer storage.Close()

	chunkNames := map[string]bool{}
	for _, entry := range storage.EntryNames() {
		if first, _, found := strings.Cut(path.Clean(entry), "/"); found {
			chunkNames[first] = true
		}
	}
	sorted := make([]string, 0, len(chunkNames))
	for name := range chunkNames {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	view := storage.View()
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "CHUNK\tBUILT\tDOWNLOADED\tVERSION\tORDER ENTRIES")
	for _, name := range sorted {
		timestamp, err := sharedindex.ReadTimestamp(view, name)
		if err != nil {
			return err
		}
		downloaded, version, entries := "-", "-", "-"
		meta, err := sharedindex.ReadMetadata(view, name)
		if err == nil {
			downloaded = formatMillis(meta.CreatedAt)
			if v := meta.Version.String(); v != "" {
				version = v
			}
			names := make([]string, len(meta.OrderEntries))
			for i, entry := range meta.OrderEntries {
				names[i] = entry.Name
			}
			entries = joinOrDash(names)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			name, formatMillis(timestamp), downloaded, version, entries)
	}
	return nil
}

func formatMillis(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
