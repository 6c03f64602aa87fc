// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for chunkdex
// components. Configuration comes from a single file named by the
// CHUNKDEX_CONFIG environment variable (via Load) or a --config flag
// (via LoadFile). There are no fallbacks and no automatic discovery:
// a deterministic, auditable configuration with no hidden overrides.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the configuration shared by the chunkdex CLI and server.
type Config struct {
	// CacheRoot is the shared index cache directory. It holds the
	// descriptor enumerator, the chunks.zip archive, and transient
	// download files.
	CacheRoot string `yaml:"cache_root"`

	// LogLevel selects the slog level: debug, info, warn, or error.
	// Empty means info.
	LogLevel string `yaml:"log_level"`

	// Locators lists the remote chunk sources queried when a project
	// requests index locations.
	Locators []LocatorEndpoint `yaml:"locators"`

	// Server configures cmd/chunkdex-server.
	Server ServerConfig `yaml:"server"`
}

// LocatorEndpoint names one remote chunk manifest.
type LocatorEndpoint struct {
	// Name identifies the locator in logs.
	Name string `yaml:"name"`

	// ManifestURL is the URL of the locator's chunk manifest.
	ManifestURL string `yaml:"manifest_url"`
}

// ServerConfig configures the fragment server.
type ServerConfig struct {
	// Listen is the host:port the server binds.
	Listen string `yaml:"listen"`

	// FragmentDir is the directory of published chunk fragments and
	// the manifest.
	FragmentDir string `yaml:"fragment_dir"`
}

// Default returns a Config with development defaults.
func Default() Config {
	return Config{
		CacheRoot: "${HOME}/.cache/chunkdex",
		LogLevel:  "info",
		Server: ServerConfig{
			Listen: "127.0.0.1:8137",
		},
	}
}

// Load reads the config file named by CHUNKDEX_CONFIG. If the
// variable is unset, returns Default.
func Load() (Config, error) {
	path := os.Getenv("CHUNKDEX_CONFIG")
	if path == "" {
		cfg := Default()
		cfg.expand()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// expand performs ${VAR} and ${VAR:-default} expansion on path
// fields.
func (c *Config) expand() {
	c.CacheRoot = expandVariables(c.CacheRoot)
	c.Server.FragmentDir = expandVariables(c.Server.FragmentDir)
}

// Validate checks the config for structural problems.
func (c *Config) Validate() error {
	if c.CacheRoot == "" {
		return fmt.Errorf("cache_root must not be empty")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	seen := make(map[string]bool)
	for _, locator := range c.Locators {
		if locator.Name == "" {
			return fmt.Errorf("locator with empty name")
		}
		if seen[locator.Name] {
			return fmt.Errorf("duplicate locator name %q", locator.Name)
		}
		seen[locator.Name] = true
		if !strings.HasPrefix(locator.ManifestURL, "http://") && !strings.HasPrefix(locator.ManifestURL, "https://") {
			return fmt.Errorf("locator %q: manifest_url %q is not an http(s) URL", locator.Name, locator.ManifestURL)
		}
	}
	return nil
}

// variablePattern matches ${VAR} and ${VAR:-default}.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

func expandVariables(value string) string {
	return variablePattern.ReplaceAllStringFunc(value, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		if env, ok := os.LookupEnv(groups[1]); ok {
			return env
		}
		return groups[2]
	})
}
