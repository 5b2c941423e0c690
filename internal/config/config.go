// Package config handles viewer configuration loading and management.
package config

import "time"

// Config holds all viewer settings.
type Config struct {
	Viewer       ViewerConfig       `yaml:"viewer"`
	Backend      BackendConfig      `yaml:"backend"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Startup      StartupConfig      `yaml:"startup"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ViewerConfig holds window and camera settings.
type ViewerConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Fullscreen bool    `yaml:"fullscreen"`
	VSync      bool    `yaml:"vsync"`
	FOV        float32 `yaml:"fov"` // vertical field of view, degrees

	ScreenshotDir string `yaml:"screenshot_dir"`
}

// BackendConfig holds generation/segmentation server settings.
type BackendConfig struct {
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"` // generation and optimization run for minutes
	Seed            int           `yaml:"seed"`
}

// SegmentationConfig holds overlay settings.
type SegmentationConfig struct {
	ThresholdRatio  float32    `yaml:"threshold_ratio"` // fraction of the largest bbox dimension
	HighlightColor  [3]float32 `yaml:"highlight_color"`
	NeutralColor    [3]float32 `yaml:"neutral_color"`
	BruteForceLimit int        `yaml:"brute_force_limit"` // vertices*points below which no grid is built
}

// StartupConfig describes what to show when the viewer opens.
type StartupConfig struct {
	ModelPath    string   `yaml:"model_path"`
	GenerationID string   `yaml:"generation_id"`
	Prompt       string   `yaml:"prompt"`
	Images       []string `yaml:"images"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Viewer: ViewerConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FOV:        45,

			ScreenshotDir: "screenshots",
		},
		Backend: BackendConfig{
			BaseURL:         "http://localhost:8000",
			RequestTimeout:  60 * time.Second,
			GenerateTimeout: 15 * time.Minute,
			Seed:            1,
		},
		Segmentation: SegmentationConfig{
			ThresholdRatio:  0.05,
			HighlightColor:  [3]float32{1, 0.2, 0.2},
			NeutralColor:    [3]float32{0.7, 0.7, 0.7},
			BruteForceLimit: 4096,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
