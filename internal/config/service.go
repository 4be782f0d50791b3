// Package config loads the gyrohookd service configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/gyrohook/internal/calibration"
)

// ServiceConfig is the JSON document read by gyrohookd. Every field is
// optional; the Get* methods supply defaults for fields left out, so a
// partial file is safe. Command line flags override whatever is set here.
type ServiceConfig struct {
	// Storage
	DataDir   *string `json:"data_dir,omitempty"`
	PrefsName *string `json:"prefs_name,omitempty"`
	DBPath    *string `json:"db_path,omitempty"`

	// Ingest
	ListenHost *string `json:"listen_host,omitempty"`
	// ListenPort 0 means use the port in the stored profile.
	ListenPort *int `json:"listen_port,omitempty"`
	// PollInterval is a duration string like "100ms".
	PollInterval  *string `json:"poll_interval,omitempty"`
	MaxFrameBytes *int    `json:"max_frame_bytes,omitempty"`

	// Serial source, disabled when SerialPort is empty
	SerialPort     *string `json:"serial_port,omitempty"`
	SerialBaudRate *int    `json:"serial_baud_rate,omitempty"`

	// Admin
	AdminListen  *string `json:"admin_listen,omitempty"`
	HistoryLimit *int    `json:"history_limit,omitempty"`
}

// EmptyServiceConfig returns a ServiceConfig with every field unset.
func EmptyServiceConfig() *ServiceConfig {
	return &ServiceConfig{}
}

// LoadServiceConfig loads a ServiceConfig from a JSON file. The file must
// have a .json extension and be under 1MB.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyServiceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that are set.
func (c *ServiceConfig) Validate() error {
	if c.ListenPort != nil && *c.ListenPort != 0 {
		if err := calibration.ValidatePort(*c.ListenPort); err != nil {
			return err
		}
	}

	if c.PollInterval != nil && *c.PollInterval != "" {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}

	if c.MaxFrameBytes != nil && *c.MaxFrameBytes < 16 {
		return fmt.Errorf("max_frame_bytes must be at least 16, got %d", *c.MaxFrameBytes)
	}

	if c.SerialBaudRate != nil && *c.SerialBaudRate < 0 {
		return fmt.Errorf("serial_baud_rate must be non-negative, got %d", *c.SerialBaudRate)
	}

	if c.HistoryLimit != nil && *c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", *c.HistoryLimit)
	}

	return nil
}

// GetDataDir returns the data directory or the default.
func (c *ServiceConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "/var/lib/gyrohook"
	}
	return *c.DataDir
}

// GetPrefsName returns the preferences name or the default.
func (c *ServiceConfig) GetPrefsName() string {
	if c.PrefsName == nil || *c.PrefsName == "" {
		return "gyro_settings"
	}
	return *c.PrefsName
}

// GetDBPath returns the journal database path, defaulting to a file in the
// data directory.
func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return filepath.Join(c.GetDataDir(), "gyrohook.db")
	}
	return *c.DBPath
}

// GetListenHost returns the ingest bind host or the default.
func (c *ServiceConfig) GetListenHost() string {
	if c.ListenHost == nil || *c.ListenHost == "" {
		return "0.0.0.0"
	}
	return *c.ListenHost
}

// GetListenPort returns the configured ingest port, or 0 to use the port in
// the stored profile.
func (c *ServiceConfig) GetListenPort() int {
	if c.ListenPort == nil {
		return 0
	}
	return *c.ListenPort
}

// GetPollInterval parses and returns the handler poll interval.
func (c *ServiceConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetMaxFrameBytes returns the longest accepted frame.
func (c *ServiceConfig) GetMaxFrameBytes() int {
	if c.MaxFrameBytes == nil {
		return 4096
	}
	return *c.MaxFrameBytes
}

// GetSerialPort returns the serial device path, empty when disabled.
func (c *ServiceConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerialBaudRate returns the serial baud rate or the default.
func (c *ServiceConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil || *c.SerialBaudRate == 0 {
		return 115200
	}
	return *c.SerialBaudRate
}

// GetAdminListen returns the admin HTTP address or the default.
func (c *ServiceConfig) GetAdminListen() string {
	if c.AdminListen == nil || *c.AdminListen == "" {
		return "127.0.0.1:8089"
	}
	return *c.AdminListen
}

// GetHistoryLimit returns how many journal rows the admin routes show.
func (c *ServiceConfig) GetHistoryLimit() int {
	if c.HistoryLimit == nil {
		return 200
	}
	return *c.HistoryLimit
}
