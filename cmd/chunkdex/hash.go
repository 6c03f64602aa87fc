// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/chunkdex/chunkdex/cmd/chunkdex/cli"
	"github.com/chunkdex/chunkdex/lib/chunkhash"
)

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:    "hash",
		Summary: "Compute the content hash of files",
		Usage:   "chunkdex hash <file>...",
		Examples: []cli.Example{
			{Description: "Hash a source file", Command: "chunkdex hash src/Main.java"},
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one file is required")
			}
			for _, filePath := range args {
				content, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s\n", chunkhash.FormatHash(chunkhash.HashContent(content)), filePath)
			}
			return nil
		},
	}
}
