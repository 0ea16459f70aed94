package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultApplicationConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultApplicationConfig().Validate())
}

func TestLoadApplicationConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
name = "testbed"
log_level = "debug"

[window]
width = 640
height = 480

[renderer]
vsync = false
clear_color = [0.1, 0.2, 0.3, 1.0]
max_sprites = 10

[game]
time_scale = 0.5
gravity = [0.0, -3.0]
`)

	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "testbed", config.Name)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "assets", config.AssetsDir)
	assert.Equal(t, uint32(640), config.Window.StartWidth)
	assert.Equal(t, uint32(100), config.Window.StartPosX)
	assert.False(t, config.Renderer.VSync)
	assert.True(t, config.Renderer.DynamicCommandBuffers)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, config.Renderer.ClearColor)
	assert.Equal(t, uint32(10), config.Renderer.MaxSprites)
	assert.Equal(t, uint32(64), config.Renderer.MaxTextures)
	assert.Equal(t, 0.5, config.Game.TimeScale)

	rc := config.RendererConfig()
	assert.Equal(t, "testbed", rc.ApplicationName)
	assert.Equal(t, mgl32.Vec2{0, -3}, rc.Resources.Gravity)
	assert.Equal(t, uint32(10), rc.Resources.MaxSprites)
	assert.Equal(t, float32(1), rc.ShapeLineWidth)
}

func TestLoadApplicationConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		match   string
	}{
		{"unknown key", "[window]\nwidht = 10\n", "widht"},
		{"bad syntax", "name = \n", "config.toml"},
		{"zero window", "[window]\nwidth = 0\n", "window size"},
		{"negative time scale", "[game]\ntime_scale = -1.0\n", "time scale"},
		{"bad log level", "log_level = \"chatty\"\n", "log level"},
		{"zero line width", "[renderer]\nshape_line_width = 0.0\n", "line width"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadApplicationConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.match)
		})
	}
}

func TestLoadApplicationConfigMissingFile(t *testing.T) {
	_, err := LoadApplicationConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateJoinsErrors(t *testing.T) {
	config := DefaultApplicationConfig()
	config.Renderer.MaxSprites = 0
	config.AssetsDir = ""

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacities")
	assert.Contains(t, err.Error(), "assets directory")
}
