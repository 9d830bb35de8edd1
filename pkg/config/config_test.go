package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindara-dev/prdiff/pkg/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 100, cfg.Cache.LocalCapacity)
	assert.Equal(t, 60*time.Second, cfg.Analysis.ToolTimeout)
	assert.Equal(t, 60, cfg.Analysis.MatchConfidenceThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Repository.CloneTimeout)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	configContent := `
cache:
  backend: "bbolt"
  bolt_path: "/tmp/test-cache.db"
  local_capacity: 250

repository:
  base_dir: "/tmp/test-worktrees"

analysis:
  tool_concurrency: 4
  match_confidence_threshold: 70
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-config-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	tmpFile.Close()

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, "bbolt", cfg.Cache.Backend)
	assert.Equal(t, "/tmp/test-cache.db", cfg.Cache.BoltPath)
	assert.Equal(t, 250, cfg.Cache.LocalCapacity)
	assert.Equal(t, "/tmp/test-worktrees", cfg.Repository.BaseDir)
	assert.Equal(t, 4, cfg.Analysis.ToolConcurrency)
	assert.Equal(t, 70, cfg.Analysis.MatchConfidenceThreshold)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PRDIFF_CACHE_BACKEND", "bbolt")
	t.Setenv("PRDIFF_CACHE_LOCAL_CAPACITY", "500")
	t.Setenv("PRDIFF_REPOSITORY_BASE_DIR", "/tmp/env-worktrees")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "bbolt", cfg.Cache.Backend)
	assert.Equal(t, 500, cfg.Cache.LocalCapacity)
	assert.Equal(t, "/tmp/env-worktrees", cfg.Repository.BaseDir)
}

func TestValidateConfigDefaultsPass(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 100, cfg.Cache.LocalCapacity)
	assert.Equal(t, 60, cfg.Analysis.MatchConfidenceThreshold)
}

func TestTimeDurationParsing(t *testing.T) {
	t.Parallel()

	configContent := `
repository:
  clone_timeout: "10m"
  pr_ref_fetch_timeout: "90s"

analysis:
  tool_timeout: "2m"
  cache_read_timeout: "500ms"
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-duration-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	tmpFile.Close()

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, 10*time.Minute, cfg.Repository.CloneTimeout)
	assert.Equal(t, 90*time.Second, cfg.Repository.PRRefFetchTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Analysis.ToolTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Analysis.CacheReadTimeout)
}
