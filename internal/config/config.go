// Package config loads and validates the tacholink YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tacholink/tacholink/internal/protocol"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig  `yaml:"device"`
	Dialect  DialectConfig `yaml:"dialect"`
	Output   OutputConfig  `yaml:"output"`
	LogLevel string        `yaml:"log_level"`
}

// DeviceConfig identifies the tachograph adapter to connect to.
type DeviceConfig struct {
	// Address is the peripheral address (MAC, or CoreBluetooth UUID on
	// macOS). Empty means scan and pick the first matching device.
	Address            string `yaml:"address"`
	ScanTimeoutSeconds int    `yaml:"scan_timeout_seconds"`
}

// DialectConfig overrides parts of the built-in protocol dialect.
// Zero values keep the defaults.
type DialectConfig struct {
	ServiceUUID    string `yaml:"service_uuid"`
	WriteCharUUID  string `yaml:"write_char_uuid"`
	NotifyCharUUID string `yaml:"notify_char_uuid"`

	AuthTimeoutSeconds     int `yaml:"auth_timeout_seconds"`
	DownloadTimeoutSeconds int `yaml:"download_timeout_seconds"`
	ProbeWindowSeconds     int `yaml:"probe_window_seconds"`

	// AssumeSuccessOnSilence controls whether a silent auth timeout
	// counts as success when a notify channel exists.
	AssumeSuccessOnSilence *bool `yaml:"assume_success_on_silence"`
	// BlindWriteAuthenticates controls the no-notify-channel auth path.
	BlindWriteAuthenticates bool `yaml:"blind_write_authenticates"`
}

// OutputConfig holds artifact persistence settings.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tacholink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Device: DeviceConfig{
			ScanTimeoutSeconds: 10,
		},
		Output: OutputConfig{
			Dir: filepath.Join(home, "tacholink", "downloads"),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in output.dir is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Output.Dir = expandTilde(cfg.Output.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}

	if c.Device.ScanTimeoutSeconds <= 0 {
		return fmt.Errorf("device.scan_timeout_seconds must be > 0")
	}

	if c.Dialect.AuthTimeoutSeconds < 0 {
		return fmt.Errorf("dialect.auth_timeout_seconds must not be negative")
	}
	if c.Dialect.DownloadTimeoutSeconds < 0 {
		return fmt.Errorf("dialect.download_timeout_seconds must not be negative")
	}
	if c.Dialect.ProbeWindowSeconds < 0 {
		return fmt.Errorf("dialect.probe_window_seconds must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BuildDialect applies the configured overrides on top of the default
// protocol dialect. Empty or zero fields keep the defaults.
func (c *Config) BuildDialect() protocol.Dialect {
	d := protocol.Default()
	dc := c.Dialect

	if dc.ServiceUUID != "" {
		d.ServiceUUID = dc.ServiceUUID
	}
	if dc.WriteCharUUID != "" {
		d.WriteCharUUID = dc.WriteCharUUID
	}
	if dc.NotifyCharUUID != "" {
		d.NotifyCharUUID = dc.NotifyCharUUID
	}
	if dc.AuthTimeoutSeconds > 0 {
		d.AuthTimeout = time.Duration(dc.AuthTimeoutSeconds) * time.Second
	}
	if dc.DownloadTimeoutSeconds > 0 {
		d.DownloadTimeout = time.Duration(dc.DownloadTimeoutSeconds) * time.Second
	}
	if dc.ProbeWindowSeconds > 0 {
		d.ProbeWindow = time.Duration(dc.ProbeWindowSeconds) * time.Second
	}
	if dc.AssumeSuccessOnSilence != nil {
		if *dc.AssumeSuccessOnSilence {
			d.SilenceVerdict = protocol.VerdictAssumeSuccess
		} else {
			d.SilenceVerdict = protocol.VerdictRejected
		}
	}
	d.BlindWriteAuthenticates = dc.BlindWriteAuthenticates

	return d
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
