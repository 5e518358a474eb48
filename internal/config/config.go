package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "tp25ctl"

// Config holds all application configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Controller ControllerConfig `yaml:"controller"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Simulate   SimulateConfig   `yaml:"simulate"`
	LogLevel   string           `yaml:"log_level"`
}

// DeviceConfig identifies the thermometer over BLE.
type DeviceConfig struct {
	Name           string        `yaml:"name"` // advertised local name
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	WriteCharUUID  string        `yaml:"write_uuid"`
	NotifyCharUUID string        `yaml:"notify_uuid"`
}

// ControllerConfig tunes the connection manager.
type ControllerConfig struct {
	QueueSize        int           `yaml:"queue_size"`
	RetryBase        time.Duration `yaml:"retry_base"` // 0 retries immediately
	RetryMax         time.Duration `yaml:"retry_max"`
	TransferLogLimit int           `yaml:"transfer_log_limit"` // 0 keeps every entry
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // empty disables the endpoint
}

// SimulateConfig replaces the BLE device with an in-process simulation.
type SimulateConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:           "Thermopro",
			ScanTimeout:    10 * time.Second,
			WriteCharUUID:  "1086fff1-3343-4817-8bb2-b32206336ce8",
			NotifyCharUUID: "1086fff2-3343-4817-8bb2-b32206336ce8",
		},
		Controller: ControllerConfig{
			QueueSize: 16,
			RetryBase: time.Second,
			RetryMax:  30 * time.Second,
		},
		Simulate: SimulateConfig{
			ReportInterval: time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. A leading ~ in path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}
	if c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0")
	}
	if c.Device.WriteCharUUID == "" || c.Device.NotifyCharUUID == "" {
		return fmt.Errorf("device.write_uuid and device.notify_uuid must not be empty")
	}

	if c.Controller.QueueSize <= 0 {
		return fmt.Errorf("controller.queue_size must be > 0")
	}
	if c.Controller.RetryBase < 0 {
		return fmt.Errorf("controller.retry_base must not be negative")
	}
	if c.Controller.RetryMax < c.Controller.RetryBase {
		return fmt.Errorf("controller.retry_max must be >= controller.retry_base")
	}
	if c.Controller.TransferLogLimit < 0 {
		return fmt.Errorf("controller.transfer_log_limit must not be negative")
	}

	if c.Simulate.Enabled && c.Simulate.ReportInterval <= 0 {
		return fmt.Errorf("simulate.report_interval must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values map
// to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// WriteDefault writes the default config to DefaultConfigPath if no file is
// there yet. It returns the path written, or "" if a config already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	header := "# " + appName + " configuration\n# Durations use Go syntax, e.g. 500ms, 10s, 1m.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
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
