package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lumen.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Workspaces)
	assert.Equal(t, "soft", cfg.Backend)
	l, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
workspaces = 3
fps = 60
camera = "Camera.001"
log_level = "debug"

[lighting]
sun_energy = [2.0, 2.0, 2.0]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workspaces)
	assert.Equal(t, 60, cfg.FPS)
	assert.Equal(t, "Camera.001", cfg.Camera)
	assert.Equal(t, [3]float64{2, 2, 2}, cfg.Lighting.SunEnergy)
	assert.Equal(t, [3]float64{0, 0, 1}, cfg.Lighting.SkyDirection, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Images)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `workspace = 2`},
		{"zero workspaces", `workspaces = 0`},
		{"fps range", `fps = 1000`},
		{"bad level", `log_level = "loud"`},
		{"zero sun", "[lighting]\nsun_direction = [0.0, 0.0, 0.0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, `workspaces = 0`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
