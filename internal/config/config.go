// Package config loads the chat client configuration: a TOML file with flag
// and environment overrides layered on top of defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the client configuration.
type Config struct {
	// ServerURL is the REST base URL of the chat backend.
	ServerURL string `toml:"server_url"`
	// Username/Password are the dev credentials. Real deployments hand the
	// token over out of band; the dev server takes register+login.
	Username string `toml:"username"`
	Password string `toml:"password"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `toml:"log_level"`
	// LogFile receives logs so they stay off the TUI's terminal. Empty
	// disables file logging.
	LogFile string `toml:"log_file"`
}

func defaults() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		LogLevel:  "info",
	}
}

// WebsocketURL derives the channel endpoint from the REST base URL.
func (c Config) WebsocketURL() string {
	ws := c.ServerURL
	ws = strings.Replace(ws, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)
	return strings.TrimRight(ws, "/") + "/ws"
}

// DefaultPath is the conventional config location, ~/.partychat/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".partychat", "config.toml")
}

// Load reads the TOML file at path (missing file means defaults) and applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("PARTYCHAT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("PARTYCHAT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("PARTYCHAT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("PARTYCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}
