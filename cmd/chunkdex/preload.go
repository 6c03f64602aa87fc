// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/chunkdex/chunkdex/cmd/chunkdex/cli"
	"github.com/chunkdex/chunkdex/lib/config"
	"github.com/chunkdex/chunkdex/lib/fetch"
	"github.com/chunkdex/chunkdex/lib/logging"
	"github.com/chunkdex/chunkdex/lib/sharedindex"
)

// preloadProject stands in for a project session when preloading
// from the command line.
type preloadProject struct{}

func (*preloadProject) Name() string           { return "preload" }
func (*preloadProject) StructureStamp() uint64 { return 1 }

func preloadCommand() *cli.Command {
	var configPath, cacheRoot string
	return &cli.Command{
		Name:    "preload",
		Summary: "Download offered chunks into the local cache",
		Description: `Download every chunk offered by the configured locator
endpoints into the local chunk cache, so later project sessions can
attach them without network access. Chunks already in the cache are
skipped.`,
		Examples: []cli.Example{
			{Description: "Preload with an explicit config", Command: "chunkdex preload --config chunkdex.yaml"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("preload", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "config file (defaults to $CHUNKDEX_CONFIG)")
			flags.StringVar(&cacheRoot, "cache", "", "cache directory (overrides the config)")
			return flags
		},
		Run: func(args []string) error {
			return runPreload(configPath, cacheRoot)
		},
	}
}

func runPreload(configPath, cacheRoot string) error {
	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if cacheRoot != "" {
		cfg.CacheRoot = cacheRoot
	}
	if len(cfg.Locators) == 0 {
		return fmt.Errorf("no locator endpoints configured")
	}

	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locators := make([]sharedindex.Locator, 0, len(cfg.Locators))
	for _, endpoint := range cfg.Locators {
		locators = append(locators, fetch.NewHTTPLocator(endpoint.Name, endpoint.ManifestURL, nil))
	}

	service, err := sharedindex.NewService(sharedindex.ServiceConfig{
		Root:     cfg.CacheRoot,
		Kinds:    sharedindex.NewKindRegistry(),
		Locators: locators,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer service.Close()

	project := &preloadProject{}
	var loads []*sharedindex.Load
	var total int
	for _, locator := range locators {
		descriptors, err := locator.LocateIndexes(ctx, project, nil)
		if err != nil {
			logger.Error("locator failed", "locator", locator.Name(), "error", err)
			continue
		}
		total += len(descriptors)
		for _, descriptor := range descriptors {
			loads = append(loads, service.PreloadChunk(ctx, descriptor))
		}
	}

	var failed int
	for _, load := range loads {
		if err := load.Err(); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("preload interrupted: %d of %d chunks not loaded", failed, total)
	}
	fmt.Fprintf(os.Stdout, "preloaded %d chunks into %s\n", total, cfg.CacheRoot)
	return nil
}
