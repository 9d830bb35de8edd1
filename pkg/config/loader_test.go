package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindara-dev/prdiff/pkg/config"
)

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte(""), 0o600))

	cfg, err := config.LoadConfig(emptyPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 0, cfg.Analysis.ToolConcurrency)
	assert.Equal(t, 60, cfg.Analysis.MatchConfidenceThreshold)
}

func TestLoadConfig_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	content := `cache:
  local_capacity: [invalid yaml
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_UnknownKeys_NoError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `unknown_section:
  unknown_key: "value"
analysis:
  tool_concurrency: 4
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Analysis.ToolConcurrency)
}

func TestLoadConfig_PartialConfig_MergesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `cache:
  local_capacity: 50
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Cache.LocalCapacity)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 60, cfg.Analysis.MatchConfidenceThreshold)
}

func TestLoadConfig_EnvOverride_NestedKey(t *testing.T) {
	dir := t.TempDir()
	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte(""), 0o600))

	t.Setenv("PRDIFF_ANALYSIS_MATCH_CONFIDENCE_THRESHOLD", "75")

	cfg, err := config.LoadConfig(emptyPath)
	require.NoError(t, err)

	assert.Equal(t, 75, cfg.Analysis.MatchConfidenceThreshold)
}

func TestLoadConfig_TTLOverrides_Parsed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `cache:
  ttl_overrides:
    comparison: "10m"
    tool: "48h"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "10m", cfg.Cache.TTLOverrides["comparison"])
	assert.Equal(t, "48h", cfg.Cache.TTLOverrides["tool"])
}

func TestLoadConfig_ExplicitPath_NotFound_ReturnsError(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfig_InvalidMatchThreshold_FailsValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `analysis:
  match_confidence_threshold: 150
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, config.ErrInvalidMatchThreshold)
}
