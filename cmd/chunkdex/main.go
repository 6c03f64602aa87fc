// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Command chunkdex is the shared index chunk toolbox: build and
// inspect chunk fragments, preload chunks into a local cache, and
// compute content hashes.
package main

import (
	"fmt"
	"os"

	"github.com/chunkdex/chunkdex/cmd/chunkdex/cli"
)

func main() {
	root := &cli.Command{
		Name:    "chunkdex",
		Summary: "Shared index chunk tools",
		Description: `Build, inspect, and preload shared index chunks.

A chunk is a content-addressed archive of pre-built indexes shared
across projects. The pack command builds a downloadable chunk
fragment from local index data; preload downloads chunks offered by
configured locator endpoints into the local cache.`,
		Subcommands: []*cli.Command{
			packCommand(),
			inspectCommand(),
			preloadCommand(),
			hashCommand(),
		},
	}
	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
