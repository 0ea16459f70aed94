package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer"
	"github.com/spaghettifunk/vulkanmonkey/engine/resources"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Directory holding shaders/ and textures/, relative to the working directory.
	AssetsDir string `toml:"assets_dir"`

	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Game     GameConfig     `toml:"game"`
}

type WindowConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"height"`
}

type RendererConfig struct {
	VSync            bool       `toml:"vsync"`
	EnableValidation bool       `toml:"validation"`
	ClearColor       [4]float32 `toml:"clear_color"`
	// Record every frame into one dynamic command buffer instead of reusing
	// prerecorded per image buffers.
	DynamicCommandBuffers bool    `toml:"dynamic_command_buffers"`
	ShapeLineWidth        float32 `toml:"shape_line_width"`
	MaxSprites            uint32  `toml:"max_sprites"`
	MaxUserShapes         uint32  `toml:"max_user_shapes"`
	MaxTextures           uint32  `toml:"max_textures"`
}

type GameConfig struct {
	TimeScale float64 `toml:"time_scale"`
	// Zero means unlimited.
	MaxFPS  uint32     `toml:"max_fps"`
	Gravity [2]float32 `toml:"gravity"`
}

// RendererConfig converts the application settings for renderer.New.
func (c *ApplicationConfig) RendererConfig() renderer.Config {
	return renderer.Config{
		ApplicationName:  c.Name,
		EnableValidation: c.Renderer.EnableValidation,
		VSync:            c.Renderer.VSync,
		ClearColor:       c.Renderer.ClearColor,
		ShapeLineWidth:   c.Renderer.ShapeLineWidth,
		Resources: resources.Config{
			MaxSprites:    c.Renderer.MaxSprites,
			MaxUserShapes: c.Renderer.MaxUserShapes,
			MaxTextures:   c.Renderer.MaxTextures,
			Gravity:       mgl32.Vec2{c.Game.Gravity[0], c.Game.Gravity[1]},
		},
	}
}
