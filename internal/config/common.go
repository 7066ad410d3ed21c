// Package config loads and validates per-role YAML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables read by XoQ. XOQ_RELAY is resolved only by
// RelayURL, which no command calls.
const (
	EnvRelay  = "XOQ_RELAY"
	EnvKeyDir = "XOQ_KEY_DIR"
	EnvBinDir = "XOQ_BIN_DIR" // self-referential, unused by the core
	EnvLog    = "XOQ_LOG"
)

// Load reads a YAML configuration file into T.
func Load[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// RelayURL resolves the relay URL from a flag value, falling back to
// XOQ_RELAY, then the hardcoded default.
func RelayURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(EnvRelay); v != "" {
		return v
	}
	return "https://relay.xoq.dev"
}

// KeyDir resolves the key directory from a flag value, falling back to
// XOQ_KEY_DIR, then the OS default (handled by identity.Load when "").
func KeyDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvKeyDir)
}

// ApplyLogLevel sets the global zerolog level from XOQ_LOG (RUST_LOG-style:
// error|warn|info|debug|trace), overridden to trace when debug is true.
func ApplyLogLevel(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
		return
	}
	switch os.Getenv(EnvLog) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
