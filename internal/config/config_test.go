package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("MEDIA_DIR", "/srv/media")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "/srv/media", cfg.MediaDir)
	assert.Equal(t, "meetings.db", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.Backend.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Backend.SettleDelay)
	assert.Equal(t, "0.0.0.0:9092", cfg.Web.BindAddress)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_RequiresMediaDir(t *testing.T) {
	t.Setenv("MEDIA_DIR", "")
	os.Unsetenv("MEDIA_DIR")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEDIA_DIR")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	t.Setenv("MEDIA_DIR", "/from/env")
	t.Setenv("BACKEND_URL", "")
	os.Unsetenv("BACKEND_URL")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MEDIA_DIR=/from/file\nBACKEND_URL=http://backend:9000\n"), 0o600))

	t.Cleanup(func() { os.Unsetenv("BACKEND_URL") })

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	// existing environment variables are not overridden by the file
	assert.Equal(t, "/from/env", cfg.MediaDir)
	assert.Equal(t, "http://backend:9000", cfg.Backend.URL)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}

func TestMediaURL(t *testing.T) {
	cfg := &Config{PublicURL: "https://media.example.com/"}
	assert.Equal(t, "https://media.example.com/meetings/abc/file", cfg.MediaURL("abc"))
}
