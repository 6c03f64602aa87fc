// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree for the chunkdex binary:
// nested subcommands, pflag flag sets, and structured help output.
package cli
