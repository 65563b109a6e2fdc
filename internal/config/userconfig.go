package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// UserConfig represents the user's custom configuration.
type UserConfig struct {
	Markers MarkersConfig `toml:"markers"`
	Capture CaptureConfig `toml:"capture"`
	Shell   ShellConfig   `toml:"shell"`
}

// MarkersConfig holds marker store settings.
type MarkersConfig struct {
	MaxMarkers int `toml:"max_markers"` // Marker store capacity (default: 200, min: 20, max: 2000)
	LineBuffer int `toml:"line_buffer"` // Plain-text lines retained for range extraction (default: 10000, min: 100)
}

// CaptureConfig holds sentinel capture settings.
type CaptureConfig struct {
	TimeoutMs  int `toml:"timeout_ms"`  // Capture timeout in milliseconds (default: 30000)
	DebounceMs int `toml:"debounce_ms"` // Settle window after the end sentinel, in milliseconds (default: 50)
}

// ShellConfig holds shell spawning settings.
type ShellConfig struct {
	PreferredShell string `toml:"preferred_shell"` // Preferred shell: if empty, auto-detect from $SHELL / platform.
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *UserConfig {
	return &UserConfig{
		Markers: MarkersConfig{
			MaxMarkers: DefaultMaxMarkers,
			LineBuffer: DefaultLineBufferLines,
		},
		Capture: CaptureConfig{
			TimeoutMs:  int(DefaultCaptureTimeout / time.Millisecond),
			DebounceMs: int(DefaultCaptureDebounce / time.Millisecond),
		},
		Shell: ShellConfig{
			PreferredShell: "",
		},
	}
}

// GetConfigPath returns the path of the user config file, creating parent
// directories as needed.
func GetConfigPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("shellmark", "config.toml"))
}

// LoadUserConfig loads the user configuration, falling back to defaults for
// anything unset or out of range. A missing config file is not an error.
func LoadUserConfig() (*UserConfig, error) {
	cfg := DefaultConfig()

	path, err := GetConfigPath()
	if err != nil {
		return cfg, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config: %w", err)
	}

	cfg.Validate()
	return cfg, nil
}

// Validate clamps out-of-range values back into supported bounds.
func (c *UserConfig) Validate() {
	c.Markers.MaxMarkers = ClampMaxMarkers(c.Markers.MaxMarkers)
	c.Markers.LineBuffer = ClampLineBufferLines(c.Markers.LineBuffer)
	if c.Capture.TimeoutMs <= 0 {
		c.Capture.TimeoutMs = int(DefaultCaptureTimeout / time.Millisecond)
	}
	if c.Capture.DebounceMs <= 0 {
		c.Capture.DebounceMs = int(DefaultCaptureDebounce / time.Millisecond)
	}
}

// CaptureTimeout returns the configured capture timeout as a duration.
func (c *UserConfig) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutMs) * time.Millisecond
}

// CaptureDebounce returns the configured debounce window as a duration.
func (c *UserConfig) CaptureDebounce() time.Duration {
	return time.Duration(c.Capture.DebounceMs) * time.Millisecond
}
