// Package config holds the viewer's settings and loads them from TOML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("config: invalid")

// Lighting is the world light: a hemispherical sky and a directional sun.
// Directions need not be normalized.
type Lighting struct {
	SkyDirection [3]float64 `toml:"sky_direction"`
	SkyEnergy    [3]float64 `toml:"sky_energy"`
	SunDirection [3]float64 `toml:"sun_direction"`
	SunEnergy    [3]float64 `toml:"sun_energy"`
}

// Config is the complete viewer configuration.
type Config struct {
	// Workspaces is the number of frames that may be in flight.
	Workspaces int `toml:"workspaces"`
	// Images is the number of swapchain images.
	Images  int    `toml:"images"`
	Backend string `toml:"backend"`
	FPS     int    `toml:"fps"`

	Scene   string `toml:"scene"`
	Camera  string `toml:"camera"`
	Texture string `toml:"texture"`

	UseCameraAspect bool `toml:"use_camera_aspect"`
	SmoothZoom      bool `toml:"smooth_zoom"`
	CompileShaders  bool `toml:"compile_shaders"`
	SkipValidation  bool `toml:"skip_validation"`
	Watch           bool `toml:"watch"`

	LogFile  string `toml:"log_file"`
	LogLevel string `toml:"log_level"`

	Lighting Lighting `toml:"lighting"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Workspaces: 2,
		Images:     3,
		Backend:    "soft",
		FPS:        30,
		SmoothZoom: true,
		LogLevel:   "info",
		Lighting: Lighting{
			SkyDirection: [3]float64{0, 0, 1},
			SkyEnergy:    [3]float64{0.1, 0.1, 0.2},
			SunDirection: [3]float64{6, 5, 4},
			SunEnergy:    [3]float64{1, 1, 0.9},
		},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.Workspaces < 1:
		return fmt.Errorf("%w: workspaces must be at least 1, got %d", ErrInvalidConfig, c.Workspaces)
	case c.Images < 1:
		return fmt.Errorf("%w: images must be at least 1, got %d", ErrInvalidConfig, c.Images)
	case c.FPS < 1 || c.FPS > 240:
		return fmt.Errorf("%w: fps must be in [1, 240], got %d", ErrInvalidConfig, c.FPS)
	case c.Backend == "":
		return fmt.Errorf("%w: backend is empty", ErrInvalidConfig)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Lighting.SkyDirection == [3]float64{} || c.Lighting.SunDirection == [3]float64{} {
		return fmt.Errorf("%w: light directions must be non-zero", ErrInvalidConfig)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}
