package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultOrder, cfg.Order)
	assert.Equal(t, DefaultRetries, cfg.Retries)
	assert.Equal(t, DefaultIncludes, cfg.Include)
	assert.Empty(t, cfg.Exclude)
	assert.InDelta(t, DefaultSpaceThresholdPercent, cfg.SpaceGuard.ThresholdPercent, 0.001)
	assert.Equal(t, DefaultSpacePollInterval, cfg.SpaceGuard.PollIntervalSeconds)
	assert.Equal(t, "auto", cfg.Metadata.PermissionWeak)
	assert.False(t, cfg.Metadata.Strict)
	assert.Equal(t, DefaultDedupMinSize, cfg.Dedup.MinSize)
	assert.True(t, cfg.History.Enabled)
	assert.NotEmpty(t, cfg.ResultsLog)
}

func TestLoadFromFile(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "reap")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := `workers: 6
order: desc
retries: 4
space_guard:
  threshold_percent: 25
metadata:
  strict: true
  permission_weak: "true"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, "desc", cfg.Order)
	assert.Equal(t, 4, cfg.Retries)
	assert.InDelta(t, 25.0, cfg.SpaceGuard.ThresholdPercent, 0.001)
	assert.True(t, cfg.Metadata.Strict)
	assert.Equal(t, "true", cfg.Metadata.PermissionWeak)

	// Unset keys keep their defaults.
	assert.Equal(t, DefaultIncludes, cfg.Include)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("REAP_WORKERS", "8")
	t.Setenv("REAP_ORDER", "desc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "desc", cfg.Order)
}

func TestLoadInvalidYAML(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "reap")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("workers: [not: valid"), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestLoadExpandsTilde(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "reap")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("quarantine_dir: ~/quarantine\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "quarantine"), cfg.QuarantineDir)
}

func TestWriteDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	require.NoError(t, WriteDefault())

	dir, err := ConfigDir()
	require.NoError(t, err)
	path := filepath.Join(dir, "config.yaml")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// The generated file must itself load cleanly.
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, cfg.Workers)

	// A second call leaves an existing file untouched.
	require.NoError(t, os.WriteFile(path, []byte("workers: 9\n"), 0o644))
	require.NoError(t, WriteDefault())
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Workers)
}

func TestConfigDirXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/xdg/reap", dir)
}

func TestSetDefaultsStandalone(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	assert.Equal(t, DefaultWorkers, v.GetInt("workers"))
	assert.Equal(t, "auto", v.GetString("metadata.permission_weak"))
	assert.Equal(t, DefaultDedupMinSize, v.GetString("dedup.min_size"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"~/x", filepath.Join(home, "x")},
		{"/abs/path", "/abs/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
