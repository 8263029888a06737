// Package config loads hsync settings for the master and replica processes.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config holds all settings.
type Config struct {
	Engine       EngineConfig       `yaml:"engine"`
	Materializer MaterializerConfig `yaml:"materializer"`
	Cluster      ClusterConfig      `yaml:"cluster"`
	Display      DisplayConfig      `yaml:"display"`
	Export       ExportConfig       `yaml:"export"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// EngineConfig selects the assets the master instantiates and how it waits
// for cooks.
type EngineConfig struct {
	AssetLibrary  string        `yaml:"asset_library"` // YAML library loaded before instantiation
	Assets        []string      `yaml:"assets"`        // Asset names to instantiate
	PollInterval  time.Duration `yaml:"poll_interval"`
	ProgressEvery int           `yaml:"progress_every"` // Polls between progress log lines
	Watch         bool          `yaml:"watch"`          // Reload the library when it changes
}

// MaterializerConfig holds part conversion settings.
type MaterializerConfig struct {
	Winding       string `yaml:"winding"` // "reverse" or "preserve"
	CurveSegments int    `yaml:"curve_segments"`
	PointClouds   bool   `yaml:"point_clouds"`
	Materials     bool   `yaml:"materials"` // Render and ship material textures
}

// ClusterConfig holds the master/replica channel settings.
type ClusterConfig struct {
	Listen           string        `yaml:"listen"`     // Master listen address
	MasterURL        string        `yaml:"master_url"` // Replica dial URL
	Name             string        `yaml:"name"`       // Replica name in master logs
	Replicas         int           `yaml:"replicas"`   // Replicas the master waits for before the first frame
	FrameRate        int           `yaml:"frame_rate"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	AckTimeout       time.Duration `yaml:"ack_timeout"`
}

// FrameInterval returns the time between two commits.
func (c ClusterConfig) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.FrameRate)
}

// DisplayConfig holds replica window settings.
type DisplayConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	Headless   bool `yaml:"headless"` // Mirror only, no window
}

// ExportConfig holds glTF snapshot settings.
type ExportConfig struct {
	GLTFPath string `yaml:"gltf_path"` // Empty disables export
	Binary   bool   `yaml:"binary"`    // Write .glb instead of .gltf
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Assets:        []string{"demo::cubes"},
			PollInterval:  10 * time.Millisecond,
			ProgressEvery: 50,
		},
		Materializer: MaterializerConfig{
			Winding:       "reverse",
			CurveSegments: 20,
			Materials:     true,
		},
		Cluster: ClusterConfig{
			Listen:           ":7400",
			MasterURL:        "ws://127.0.0.1:7400/cluster",
			Name:             "replica",
			Replicas:         0,
			FrameRate:        30,
			HandshakeTimeout: 5 * time.Second,
			WriteTimeout:     5 * time.Second,
			AckTimeout:       10 * time.Second,
		},
		Display: DisplayConfig{
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}
	check(c.Engine.PollInterval > 0, "engine.poll_interval must be positive, got %s", c.Engine.PollInterval)
	check(c.Materializer.Winding == "reverse" || c.Materializer.Winding == "preserve",
		"materializer.winding must be reverse or preserve, got %q", c.Materializer.Winding)
	check(c.Materializer.CurveSegments > 0, "materializer.curve_segments must be positive, got %d", c.Materializer.CurveSegments)
	check(c.Cluster.Replicas >= 0, "cluster.replicas must not be negative, got %d", c.Cluster.Replicas)
	check(c.Cluster.FrameRate > 0, "cluster.frame_rate must be positive, got %d", c.Cluster.FrameRate)
	check(c.Cluster.AckTimeout > 0, "cluster.ack_timeout must be positive, got %s", c.Cluster.AckTimeout)
	check(c.Display.Headless || (c.Display.Width > 0 && c.Display.Height > 0),
		"display size must be positive, got %dx%d", c.Display.Width, c.Display.Height)
	if err != nil {
		return errors.Join(ErrInvalid, err)
	}
	return nil
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")
