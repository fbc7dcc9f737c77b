package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"", LevelInfo, true},
		{"trace", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetBeforeInit(t *testing.T) {
	require.NoError(t, Close())

	// Loggers before Init discard silently rather than panic.
	logger := Get("early")
	require.NotNil(t, logger)
	logger.Info("dropped")
}

func TestInitAndLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reap.log")
	require.NoError(t, Init(Config{Level: "debug", Path: path}))
	defer func() { require.NoError(t, Close()) }()

	logger := Get("verify")
	logger.Info("verified", "archive", "/backups/a.tar.gz", "entries", 12)
	logger.Debug("detail line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "verified")
	assert.Contains(t, content, "/backups/a.tar.gz")
	assert.Contains(t, content, "detail line")
}

func TestComponentLevelOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reap.log")
	require.NoError(t, Init(Config{
		Level:      "debug",
		Path:       path,
		Components: map[string]string{"space": "error"},
	}))
	defer func() { require.NoError(t, Close()) }()

	Get("space").Info("suppressed by override")
	Get("batch").Info("passes at default level")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "suppressed by override")
	assert.Contains(t, content, "passes at default level")
}

func TestLoggerWith(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reap.log")
	require.NoError(t, Init(Config{Level: "info", Path: path}))
	defer func() { require.NoError(t, Close()) }()

	Get("batch").With("run", "abc123").Info("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "abc123")
}

func TestInitInvalidLevel(t *testing.T) {
	err := Init(Config{Level: "loud", Path: filepath.Join(t.TempDir(), "x.log")})
	require.Error(t, err)
}

func TestCloseIdempotent(t *testing.T) {
	require.NoError(t, Close())
	require.NoError(t, Close())
}

func TestGetCachesLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reap.log")
	require.NoError(t, Init(Config{Level: "info", Path: path}))
	defer func() { require.NoError(t, Close()) }()

	assert.Same(t, Get("batch"), Get("batch"))
}

func TestDefaultLogPath(t *testing.T) {
	p := DefaultLogPath()
	assert.True(t, strings.HasSuffix(p, filepath.Join("reap", "reap.log")), p)
}
