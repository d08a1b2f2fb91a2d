// Package config loads the server's tunables from environment
// variables, following the teacher's defaults-then-override pattern
// (see the teacher's internal/config.Config) but trimmed to exactly the
// six GO_ANALYZER_* variables the spec defines.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/standardbeagle/goanalyzer/internal/errkit"
	"github.com/standardbeagle/goanalyzer/internal/logx"
)

const (
	DefaultCacheSize       = 20
	DefaultCacheTTL        = 300 * time.Second
	DefaultSemanticEnabled = true
	DefaultSemanticTimeout = 2000 * time.Millisecond
)

// Config is the server's resolved configuration.
type Config struct {
	LogLevel        logx.Level
	CacheSize       int
	CacheTTL        time.Duration
	SemanticEnabled bool
	SemanticPath    string
	SemanticTimeout time.Duration
}

// Default returns the spec's documented defaults.
func Default() Config {
	return Config{
		LogLevel:        logx.LevelInfo,
		CacheSize:       DefaultCacheSize,
		CacheTTL:        DefaultCacheTTL,
		SemanticEnabled: DefaultSemanticEnabled,
		SemanticTimeout: DefaultSemanticTimeout,
	}
}

// Load reads the six GO_ANALYZER_* environment variables over the
// defaults, validates them, and returns the resolved Config. It never
// fails on a missing variable — only on a present-but-malformed value.
func Load() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv("GO_ANALYZER_LOG_LEVEL"); ok {
		cfg.LogLevel = logx.ParseLevel(v)
	}

	if v, ok := os.LookupEnv("GO_ANALYZER_CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errkit.NewConfigError("GO_ANALYZER_CACHE_SIZE", v, fmt.Errorf("must be an integer >= 1"))
		}
		cfg.CacheSize = n
	}

	if v, ok := os.LookupEnv("GO_ANALYZER_CACHE_TTL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, errkit.NewConfigError("GO_ANALYZER_CACHE_TTL", v, fmt.Errorf("must be a non-negative integer of seconds"))
		}
		cfg.CacheTTL = time.Duration(n) * time.Second
	}

	if v, ok := os.LookupEnv("GO_ANALYZER_SEMANTIC"); ok {
		switch v {
		case "0":
			cfg.SemanticEnabled = false
		case "1":
			cfg.SemanticEnabled = true
		default:
			return cfg, errkit.NewConfigError("GO_ANALYZER_SEMANTIC", v, fmt.Errorf("must be 0 or 1"))
		}
	}

	if v, ok := os.LookupEnv("GO_ANALYZER_SEMANTIC_PATH"); ok {
		cfg.SemanticPath = v
	}

	if v, ok := os.LookupEnv("GO_ANALYZER_SEMANTIC_TIMEOUT_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errkit.NewConfigError("GO_ANALYZER_SEMANTIC_TIMEOUT_MS", v, fmt.Errorf("must be an integer >= 1"))
		}
		cfg.SemanticTimeout = time.Duration(n) * time.Millisecond
	}

	return cfg, nil
}

// Validate bounds the numeric fields the way the teacher's
// SearchRanking.Validate bounds its scoring weights: it catches
// configuration that would parse but make the server unusable.
func (c Config) Validate() error {
	if c.CacheSize < 1 {
		return errkit.NewConfigError("CacheSize", strconv.Itoa(c.CacheSize), fmt.Errorf("must be >= 1"))
	}
	if c.CacheTTL < 0 {
		return errkit.NewConfigError("CacheTTL", c.CacheTTL.String(), fmt.Errorf("must be >= 0"))
	}
	if c.SemanticTimeout < time.Millisecond {
		return errkit.NewConfigError("SemanticTimeout", c.SemanticTimeout.String(), fmt.Errorf("must be >= 1ms"))
	}
	return nil
}

// HelperDiscoverable reports whether a semantic helper binary path was
// configured; the bridge itself still probes it at call time.
func (c Config) HelperDiscoverable() bool {
	return c.SemanticEnabled && c.SemanticPath != ""
}
