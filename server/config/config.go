package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kataras/golog"
)

const defaultConfigPath = "mirage-server.toml"

// ServerConfig is parsed once at startup from a TOML file. Every field has a
// usable zero value so a missing file still yields a working server.
type ServerConfig struct {
	Listen   string        `toml:"listen"`
	LogLevel string        `toml:"log_level"`
	WebRTC   *WebRTCConfig `toml:"webrtc"`
}

// WebRTCConfig controls minted TURN credentials handed to agents and viewers.
type WebRTCConfig struct {
	Enabled       bool              `toml:"enabled"`
	CredentialTTL string            `toml:"credential_ttl"`
	RelayHint     string            `toml:"relay_hint"`
	Servers       []WebRTCIceServer `toml:"servers"`
}

type WebRTCIceServer struct {
	URLs             []string `toml:"urls"`
	Username         string   `toml:"username"`
	Credential       string   `toml:"credential"`
	CredentialType   string   `toml:"credential_type"`
	CredentialSecret string   `toml:"credential_secret"`
}

// Config holds the process-wide server configuration.
var Config = load()

func load() *ServerConfig {
	cfg := &ServerConfig{
		Listen:   ":8000",
		LogLevel: "info",
	}
	path := strings.TrimSpace(os.Getenv("MIRAGE_SERVER_CONFIG"))
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			golog.Warnf("server config %s unreadable, using defaults: %v", path, err)
		}
	}
	if listen := strings.TrimSpace(os.Getenv("MIRAGE_SERVER_LISTEN")); listen != "" {
		cfg.Listen = listen
	}
	if level := strings.TrimSpace(os.Getenv("MIRAGE_SERVER_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8000"
	}
	return cfg
}
