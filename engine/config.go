package engine

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

// DefaultApplicationConfig is used for every key a config file leaves out.
func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:      "VulkanMonkey",
		LogLevel:  "info",
		AssetsDir: "assets",
		Window: WindowConfig{
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Renderer: RendererConfig{
			VSync:                 true,
			ClearColor:            [4]float32{0, 0, 0, 1},
			DynamicCommandBuffers: true,
			ShapeLineWidth:        1,
			MaxSprites:            1000,
			MaxUserShapes:         64,
			MaxTextures:           64,
		},
		Game: GameConfig{
			TimeScale: 1,
			MaxFPS:    0,
			Gravity:   [2]float32{0, -10},
		},
	}
}

// LoadApplicationConfig reads a TOML file on top of the defaults. Unknown
// keys are an error so typos do not go unnoticed.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := DefaultApplicationConfig()
	decoder := toml.NewDecoder(bufio.NewReader(file))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%s: %s", path, strict.String())
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	var errs []error
	if c.Window.StartWidth == 0 || c.Window.StartHeight == 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.StartWidth, c.Window.StartHeight))
	}
	if c.Renderer.MaxSprites == 0 || c.Renderer.MaxUserShapes == 0 || c.Renderer.MaxTextures == 0 {
		errs = append(errs, errors.New("renderer capacities must be positive"))
	}
	if c.Renderer.ShapeLineWidth <= 0 {
		errs = append(errs, errors.New("shape line width must be positive"))
	}
	if c.Game.TimeScale < 0 {
		errs = append(errs, fmt.Errorf("time scale %g must not be negative", c.Game.TimeScale))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level %q: %w", c.LogLevel, err))
	}
	if c.AssetsDir == "" {
		errs = append(errs, errors.New("assets directory is empty"))
	}
	return errors.Join(errs...)
}
