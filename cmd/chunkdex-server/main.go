// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Command chunkdex-server publishes chunk fragments over HTTP. It
// serves a manifest of the fragments in its fragment directory plus
// the fragment archives themselves, which makes it a locator endpoint
// for chunkdex clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chunkdex/chunkdex/lib/config"
	"github.com/chunkdex/chunkdex/lib/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen, fragmentDir string
	flag.StringVar(&configPath, "config", "", "config file (defaults to $CHUNKDEX_CONFIG)")
	flag.StringVar(&listen, "listen", "", "host:port to bind (overrides the config)")
	flag.StringVar(&fragmentDir, "fragment-dir", "", "directory of published fragments (overrides the config)")
	flag.Parse()

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
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if fragmentDir != "" {
		cfg.Server.FragmentDir = fragmentDir
	}
	if cfg.Server.FragmentDir == "" {
		return fmt.Errorf("no fragment directory configured")
	}
	if _, err := os.Stat(cfg.Server.FragmentDir); err != nil {
		return fmt.Errorf("fragment directory: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           newRouter(logger, cfg.Server.FragmentDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("serving fragments",
			"listen", cfg.Server.Listen, "dir", cfg.Server.FragmentDir)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
