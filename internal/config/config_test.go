package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/kitchencam/internal/apperr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kitchencam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Capture.SegmentSeconds)
	assert.Equal(t, 25.0, cfg.Capture.FrameRate)
	assert.Equal(t, 10000000, cfg.Capture.Bitrate)
	assert.Equal(t, 20, cfg.FFmpeg.CRF)
	assert.Equal(t, "chicken_teriyaki", cfg.DefaultRecipe)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
root: /srv/rig
recipes: [bean_soup]
default_recipe: bean_soup
capture:
  segment_seconds: 30
camera:
  backend: simulated
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/rig", cfg.Root)
	assert.Equal(t, []string{"bean_soup"}, cfg.Recipes)
	assert.Equal(t, 30, cfg.Capture.SegmentSeconds)
	assert.Equal(t, "simulated", cfg.Camera.Backend)
	// untouched keys keep their defaults
	assert.Equal(t, 25.0, cfg.Capture.FrameRate)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "root: /from/file\n")
	t.Setenv("KITCHENCAM_ROOT", "/from/env")
	t.Setenv("KITCHENCAM_FFMPEG_CRF", "23")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Root)
	assert.Equal(t, 23, cfg.FFmpeg.CRF)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Root, cfg.Root)
}

func TestLoadErrorsAreConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "root: [unclosed\n"},
		{"unknown default recipe", "default_recipe: pancakes\n"},
		{"zero segment", "capture:\n  segment_seconds: 0\n"},
		{"bad backend", "camera:\n  backend: gopro\n"},
		{"bad quality", "extract:\n  jpeg_quality: 0\n"},
		{"bad crf", "ffmpeg:\n  crf: 60\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindConfiguration), "got %v", err)
			assert.Equal(t, apperr.ExitConfiguration, apperr.ExitCode(err))
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Root = "/data"
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestContextCarriesConfig(t *testing.T) {
	cfg := Default()
	cfg.Root = "/ctx"

	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, ".", FromContext(context.Background()).Root)
}
