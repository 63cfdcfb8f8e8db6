// Package config loads the agent configuration: a TOML file selected by
// MIRAGE_CONFIG (default mirage.toml next to the binary), with MIRAGE_*
// environment variables taking precedence over file values.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/kataras/golog"
)

var logger = golog.Child("[config]")

// Config is the agent-side configuration.
type Config struct {
	// ServerURL is the base URL of the signaling server, e.g.
	// "https://mirage.example.com".
	ServerURL string `toml:"server_url"`
	// Display selects which physical display to capture.
	Display int `toml:"display"`
	// Preset names the startup capture preset (smooth/balanced/sharp).
	Preset string `toml:"preset"`
	// FPSCap limits the capture rate regardless of preset; 0 means the
	// preset's own rate applies.
	FPSCap int `toml:"fps_cap"`
	// AudioBitrate is the Opus target in bits per second.
	AudioBitrate int `toml:"audio_bitrate"`
	// AudioComplexity is the Opus complexity knob (0-10).
	AudioComplexity int `toml:"audio_complexity"`
	// MockCapture replaces the screen grabber with the synthetic gradient
	// source, for headless hosts.
	MockCapture bool `toml:"mock_capture"`
}

const defaultConfigPath = "mirage.toml"

var (
	loadOnce sync.Once
	current  Config
)

func defaults() Config {
	return Config{
		Preset:          "balanced",
		AudioBitrate:    64000,
		AudioComplexity: 5,
	}
}

// Current returns the loaded configuration, reading it on first use.
func Current() Config {
	loadOnce.Do(func() {
		current = load()
	})
	return current
}

func load() Config {
	cfg := defaults()
	path := os.Getenv("MIRAGE_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("config file %s unreadable: %v", path, err)
		}
	} else {
		logger.Infof("loaded config from %s", path)
	}
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MIRAGE_SERVER_URL")); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("MIRAGE_DISPLAY"); v != "" {
		if idx, err := strconv.Atoi(v); err == nil && idx >= 0 {
			cfg.Display = idx
		}
	}
	if v := strings.TrimSpace(os.Getenv("MIRAGE_PRESET")); v != "" {
		cfg.Preset = v
	}
	if v := os.Getenv("MIRAGE_FPS_CAP"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit >= 0 {
			cfg.FPSCap = limit
		}
	}
	if v := os.Getenv("MIRAGE_AUDIO_BITRATE"); v != "" {
		if bitrate, err := strconv.Atoi(v); err == nil && bitrate > 0 {
			cfg.AudioBitrate = bitrate
		}
	}
	if v := os.Getenv("MIRAGE_AUDIO_COMPLEXITY"); v != "" {
		if complexity, err := strconv.Atoi(v); err == nil && complexity >= 0 && complexity <= 10 {
			cfg.AudioComplexity = complexity
		}
	}
	if v := os.Getenv("MIRAGE_MOCK_CAPTURE"); v != "" {
		cfg.MockCapture = strings.EqualFold(v, "1") || strings.EqualFold(v, "true")
	}
}
