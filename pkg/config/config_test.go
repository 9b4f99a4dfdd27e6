package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configFile, []byte("log:\n  level: info\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 10, cfg.Walker.MaxBacktracks)
	assert.Equal(t, 100, cfg.Walker.MaxPathsPerTarget)
	assert.Equal(t, 3, cfg.Walker.DefaultMergeDepth)
	require.Len(t, cfg.Walker.Anchors, 1)
	assert.Equal(t, "Disposer", cfg.Walker.Anchors[0].ClassName)
	assert.Equal(t, 4, cfg.Walker.Anchors[0].Offset)
	assert.Equal(t, ".ri", cfg.Cache.Suffix)
	assert.Equal(t, "zstd", cfg.Cache.CompressionType)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
walker:
  max_backtracks: 20
  max_paths_per_target: 50
  default_merge_depth: 5
  anchors:
    - class_name: Disposer
      offset: 4
    - class_name: FinalizerHistogram
      offset: 2
cache:
  suffix: .rix
  compression_type: gzip
log:
  level: debug
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Walker.MaxBacktracks)
	assert.Equal(t, 50, cfg.Walker.MaxPathsPerTarget)
	assert.Equal(t, 5, cfg.Walker.DefaultMergeDepth)
	require.Len(t, cfg.Walker.Anchors, 2)
	assert.Equal(t, "FinalizerHistogram", cfg.Walker.Anchors[1].ClassName)
	assert.Equal(t, ".rix", cfg.Cache.Suffix)
	assert.Equal(t, "gzip", cfg.Cache.CompressionType)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidCompressionType(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configFile, []byte("cache:\n  compression_type: lz4\n"), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "compression_type")
}

func TestValidate_NegativeMaxBacktracks(t *testing.T) {
	cfg := &Config{
		Walker: WalkerConfig{MaxBacktracks: -1, MaxPathsPerTarget: 1},
		Cache:  CacheConfig{Suffix: ".ri", CompressionType: "zstd"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_backtracks")
}

func TestValidate_ZeroMaxPathsPerTarget(t *testing.T) {
	cfg := &Config{
		Walker: WalkerConfig{MaxBacktracks: 10, MaxPathsPerTarget: 0},
		Cache:  CacheConfig{Suffix: ".ri", CompressionType: "zstd"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_paths_per_target")
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, 10, cfg.Walker.MaxBacktracks)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte("walker:\n  default_merge_depth: 7\n")
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Walker.DefaultMergeDepth)
}
