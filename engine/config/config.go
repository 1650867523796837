package config

import (
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/davlio/ember/engine/core"
)

// ApplicationConfig is the top-level configuration, decoded from TOML at
// startup. All renderer constants live here instead of package-level mutable
// state so tests can run with different frame counts or forced fallbacks.
type ApplicationConfig struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting size.
	StartWidth  uint32 `toml:"start_width"`
	StartHeight uint32 `toml:"start_height"`
	// One of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	Renderer RendererConfig `toml:"renderer"`
}

// RendererConfig holds the knobs of the frame lifecycle subsystem.
type RendererConfig struct {
	// Number of frame slots cycling round-robin. Each slot owns a command
	// buffer and a sync triple.
	MaxFramesInFlight uint8 `toml:"max_frames_in_flight"`
	// When true the swapchain never selects mailbox and stays on FIFO.
	VSync bool `toml:"vsync"`
	// Attach a depth buffer to the main render target.
	EnableDepth bool `toml:"enable_depth"`
	// Enable validation layers and the debug report callback.
	EnableValidation bool `toml:"enable_validation"`
	// Upper bound on the in-flight fence wait, in nanoseconds. Expiry is
	// treated as device-lost, not retried.
	FenceTimeoutNs uint64 `toml:"fence_timeout_ns"`
	// How many times a swapchain rebuild may retry on a degenerate extent
	// before escalating to a fatal error.
	MaxRebuildAttempts int `toml:"max_rebuild_attempts"`
	// Directory holding precompiled SPIR-V shader blobs.
	ShaderDir string `toml:"shader_dir"`
}

func Default() *ApplicationConfig {
	return &ApplicationConfig{
		Name:        "Ember Application",
		StartPosX:   100,
		StartPosY:   100,
		StartWidth:  1280,
		StartHeight: 720,
		LogLevel:    "debug",
		Renderer: RendererConfig{
			MaxFramesInFlight:  2,
			VSync:              false,
			EnableDepth:        true,
			EnableValidation:   true,
			FenceTimeoutNs:     math.MaxUint64,
			MaxRebuildAttempts: 8,
			ShaderDir:          "shaders",
		},
	}
}

// Load reads a TOML file on top of the defaults. A missing file is not an
// error; the defaults are returned as-is.
func Load(path string) (*ApplicationConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogInfo("no config file at %s, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := Decode(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode unmarshals TOML into cfg and validates the result.
func Decode(data []byte, cfg *ApplicationConfig) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg.Validate()
}

func (c *ApplicationConfig) Validate() error {
	if c.Renderer.MaxFramesInFlight < 1 {
		return fmt.Errorf("max_frames_in_flight must be at least 1, got %d", c.Renderer.MaxFramesInFlight)
	}
	if c.Renderer.MaxFramesInFlight > 3 {
		return fmt.Errorf("max_frames_in_flight above 3 wastes memory and adds latency, got %d", c.Renderer.MaxFramesInFlight)
	}
	if c.Renderer.MaxRebuildAttempts < 1 {
		return fmt.Errorf("max_rebuild_attempts must be at least 1, got %d", c.Renderer.MaxRebuildAttempts)
	}
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return fmt.Errorf("window size must be non-zero, got %dx%d", c.StartWidth, c.StartHeight)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

func (c *ApplicationConfig) ParsedLogLevel() core.LogLevel {
	switch c.LogLevel {
	case "info":
		return core.LogLevelInfo
	case "warn":
		return core.LogLevelWarn
	case "error":
		return core.LogLevelError
	default:
		return core.LogLevelDebug
	}
}
