package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagBackend    = flag.String("backend", "", "Backend base URL")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagModel      = flag.String("model", "", "GLB/OBJ file or URL to open at startup")
	flagGeneration = flag.String("generation", "", "Generation id the startup model belongs to")
	flagPrompt     = flag.String("prompt", "", "Text prompt to generate at startup")
	flagImage      = flag.String("image", "", "Reference image for the startup prompt")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagBackend != "" {
		cfg.Backend.BaseURL = *flagBackend
	}
	if *flagWindowed {
		cfg.Viewer.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Viewer.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Viewer.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Viewer.Height = *flagHeight
	}
	if *flagModel != "" {
		cfg.Startup.ModelPath = *flagModel
	}
	if *flagGeneration != "" {
		cfg.Startup.GenerationID = *flagGeneration
	}
	if *flagPrompt != "" {
		cfg.Startup.Prompt = *flagPrompt
	}
	if *flagImage != "" {
		cfg.Startup.Images = append(cfg.Startup.Images, *flagImage)
	}
}
