// Package config handles daemon configuration: loading, validation,
// environment overrides and hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"analogpad/internal/profile"
	"analogpad/internal/virtualpad"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration. A loaded Config is never
// mutated; reloads produce a new value.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Engine  EngineConfig  `toml:"engine" json:"engine" yaml:"engine"`
	Input   InputConfig   `toml:"input" json:"input" yaml:"input"`
	Analog  AnalogConfig  `toml:"analog" json:"analog" yaml:"analog"`
	Sink    SinkConfig    `toml:"sink" json:"sink" yaml:"sink"`
	Monitor MonitorConfig `toml:"monitor" json:"monitor" yaml:"monitor"`
	Notify  NotifyConfig  `toml:"notify" json:"notify" yaml:"notify"`

	// Profiles are read-only definitions. When empty the built-in default
	// profile is used.
	Profiles []profile.Profile `toml:"profiles" json:"profiles" yaml:"profiles"`

	// Active names the profile and sub-profile activated at startup.
	Active ActiveConfig `toml:"active" json:"active" yaml:"active"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stderr", "stdout" or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`
}

// EngineConfig holds mapping loop configuration.
type EngineConfig struct {
	// RateHz is the mapping loop frequency.
	RateHz int `toml:"rate_hz" json:"rate_hz" yaml:"rate_hz"`

	// WarnBudgetUs is the frame time above which a frame counts as over
	// budget. Zero means one full period.
	WarnBudgetUs int `toml:"warn_budget_us" json:"warn_budget_us" yaml:"warn_budget_us"`

	// BufferCapacity is the size of the reusable analog read buffer.
	BufferCapacity int `toml:"buffer_capacity" json:"buffer_capacity" yaml:"buffer_capacity"`
}

// InputConfig holds keystroke capture configuration.
type InputConfig struct {
	// QueueCapacity bounds the hotkey event queue.
	QueueCapacity int `toml:"queue_capacity" json:"queue_capacity" yaml:"queue_capacity"`

	// Devices lists evdev paths to read on Linux. Empty auto-detects.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`

	// Grab takes exclusive access to the devices.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`
}

// AnalogConfig holds analog keyboard configuration.
type AnalogConfig struct {
	// Backend is "wooting" or "simulated".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// LibraryPath overrides the analog SDK location.
	LibraryPath string `toml:"library_path" json:"library_path" yaml:"library_path"`

	// DisconnectCheckFrames is how many consecutive empty polls trigger a
	// device presence check.
	DisconnectCheckFrames int `toml:"disconnect_check_frames" json:"disconnect_check_frames" yaml:"disconnect_check_frames"`
}

// SinkConfig holds virtual controller configuration.
type SinkConfig struct {
	// Backend is "auto", "uinput", "vigem" or "none".
	Backend    string `toml:"backend" json:"backend" yaml:"backend"`
	DeviceName string `toml:"device_name" json:"device_name" yaml:"device_name"`
	VendorID   uint16 `toml:"vendor_id" json:"vendor_id" yaml:"vendor_id"`
	ProductID  uint16 `toml:"product_id" json:"product_id" yaml:"product_id"`
}

// MonitorConfig holds the diagnostics server configuration.
type MonitorConfig struct {
	Enabled          bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr       string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
	StreamIntervalMs int    `toml:"stream_interval_ms" json:"stream_interval_ms" yaml:"stream_interval_ms"`
}

// NotifyConfig holds desktop notification configuration.
type NotifyConfig struct {
	Desktop bool   `toml:"desktop" json:"desktop" yaml:"desktop"`
	AppName string `toml:"app_name" json:"app_name" yaml:"app_name"`
}

// ActiveConfig selects what is active at startup. Empty fields pick the
// first profile and its first sub-profile.
type ActiveConfig struct {
	Profile    string `toml:"profile" json:"profile" yaml:"profile"`
	SubProfile string `toml:"sub_profile" json:"sub_profile" yaml:"sub_profile"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	sink := virtualpad.DefaultOptions()
	return &Config{
		Version: Version,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "analogpad.log"),
			MaxSizeMB:  20,
			MaxAgeDays: 30,
			MaxBackups: 5,
			Compress:   true,
		},
		Engine: EngineConfig{
			RateHz:         120,
			BufferCapacity: 256,
		},
		Input: InputConfig{
			QueueCapacity: 1000,
		},
		Analog: AnalogConfig{
			Backend:               "wooting",
			DisconnectCheckFrames: 120,
		},
		Sink: SinkConfig{
			Backend:    virtualpad.BackendAuto,
			DeviceName: sink.DeviceName,
			VendorID:   sink.VendorID,
			ProductID:  sink.ProductID,
		},
		Monitor: MonitorConfig{
			Enabled:          false,
			ListenAddr:       "127.0.0.1:9477",
			StreamIntervalMs: 50,
		},
		Notify: NotifyConfig{
			Desktop: true,
			AppName: "analogpad",
		},
	}
}

// ConfigPath returns the configuration file path: ANALOGPAD_CONFIG when set,
// otherwise config.toml in the platform config directory.
func ConfigPath() string {
	if v := os.Getenv("ANALOGPAD_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads, checks and validates the configuration at path. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	return NewLoader(path, nil).Load()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies ANALOGPAD_* environment overrides.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("ANALOGPAD_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ANALOGPAD_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("ANALOGPAD_RATE_HZ"); v != "" {
		hz, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANALOGPAD_RATE_HZ: %w", err)
		}
		c.Engine.RateHz = hz
	}
	if v := os.Getenv("ANALOGPAD_MONITOR_ADDR"); v != "" {
		c.Monitor.ListenAddr = v
		c.Monitor.Enabled = true
	}
	if v := os.Getenv("ANALOGPAD_SINK"); v != "" {
		c.Sink.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ANALOGPAD_ANALOG_LIBRARY"); v != "" {
		c.Analog.LibraryPath = v
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Input.Devices = append([]string(nil), c.Input.Devices...)
	if c.Profiles != nil {
		clone.Profiles = make([]profile.Profile, len(c.Profiles))
		for i := range c.Profiles {
			clone.Profiles[i] = c.Profiles[i].Clone()
		}
	}
	return &clone
}
