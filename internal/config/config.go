// Package config handles configuration file loading and parsing.
// Only daemon-level knobs live here; notification icon names and
// volume thresholds are fixed constants in the decision engine.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultLogLevel     = "info"
	DefaultPactlCommand = "pactl"
	DefaultAppName      = "volume-monitor"
)

// Config represents the volume-monitor configuration.
type Config struct {
	Daemon DaemonConfig `toml:"daemon"`
	Audio  AudioConfig  `toml:"audio"`
	Notify NotifyConfig `toml:"notify"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	LogLevel string `toml:"log_level"` // debug, info, warn, error
}

// AudioConfig holds audio-server access settings.
type AudioConfig struct {
	// PactlCommand is the command used to reach the PulseAudio
	// server. Split shell-style, so wrappers work, e.g.
	// "flatpak-spawn --host pactl".
	PactlCommand string `toml:"pactl_command"`
}

// NotifyConfig holds notification transport settings.
type NotifyConfig struct {
	AppName string `toml:"app_name"` // app_name passed on Notify calls
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			LogLevel: DefaultLogLevel,
		},
		Audio: AudioConfig{
			PactlCommand: DefaultPactlCommand,
		},
		Notify: NotifyConfig{
			AppName: DefaultAppName,
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "volume-monitor", "config.toml")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	// Start with defaults
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if _, err := cfg.Level(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Level parses the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Daemon.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Daemon.LogLevel, err)
	}
	return level, nil
}
