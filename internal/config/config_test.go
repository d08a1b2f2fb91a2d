package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheSize, cfg.CacheSize)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.True(t, cfg.SemanticEnabled)
	assert.Equal(t, DefaultSemanticTimeout, cfg.SemanticTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GO_ANALYZER_CACHE_SIZE", "5")
	t.Setenv("GO_ANALYZER_CACHE_TTL", "60")
	t.Setenv("GO_ANALYZER_SEMANTIC", "0")
	t.Setenv("GO_ANALYZER_SEMANTIC_TIMEOUT_MS", "500")
	t.Setenv("GO_ANALYZER_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.CacheSize)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
	assert.False(t, cfg.SemanticEnabled)
	assert.Equal(t, 500*time.Millisecond, cfg.SemanticTimeout)
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("GO_ANALYZER_CACHE_SIZE", "0")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("GO_ANALYZER_CACHE_SIZE", "5")
	t.Setenv("GO_ANALYZER_SEMANTIC", "maybe")
	_, err = Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.CacheSize = 0
	require.Error(t, cfg.Validate())
}
