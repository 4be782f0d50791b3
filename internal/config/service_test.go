package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/gyrohook/internal/calibration"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyServiceConfig_Defaults(t *testing.T) {
	cfg := EmptyServiceConfig()

	if got := cfg.GetDataDir(); got != "/var/lib/gyrohook" {
		t.Errorf("GetDataDir() = %q", got)
	}
	if got := cfg.GetPrefsName(); got != "gyro_settings" {
		t.Errorf("GetPrefsName() = %q", got)
	}
	if got := cfg.GetDBPath(); got != "/var/lib/gyrohook/gyrohook.db" {
		t.Errorf("GetDBPath() = %q", got)
	}
	if got := cfg.GetListenHost(); got != "0.0.0.0" {
		t.Errorf("GetListenHost() = %q", got)
	}
	if got := cfg.GetListenPort(); got != 0 {
		t.Errorf("GetListenPort() = %d, want 0", got)
	}
	if got := cfg.GetPollInterval(); got != 100*time.Millisecond {
		t.Errorf("GetPollInterval() = %v", got)
	}
	if got := cfg.GetMaxFrameBytes(); got != 4096 {
		t.Errorf("GetMaxFrameBytes() = %d", got)
	}
	if got := cfg.GetSerialPort(); got != "" {
		t.Errorf("GetSerialPort() = %q, want disabled", got)
	}
	if got := cfg.GetSerialBaudRate(); got != 115200 {
		t.Errorf("GetSerialBaudRate() = %d", got)
	}
	if got := cfg.GetAdminListen(); got != "127.0.0.1:8089" {
		t.Errorf("GetAdminListen() = %q", got)
	}
	if got := cfg.GetHistoryLimit(); got != 200 {
		t.Errorf("GetHistoryLimit() = %d", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadServiceConfig(t *testing.T) {
	path := writeConfig(t, "gyrohookd.json", `{
  "data_dir": "/data/user/0/gyrohook",
  "listen_port": 20000,
  "poll_interval": "250ms",
  "serial_port": "/dev/ttyUSB0",
  "history_limit": 50
}`)

	cfg, err := LoadServiceConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetDataDir(); got != "/data/user/0/gyrohook" {
		t.Errorf("GetDataDir() = %q", got)
	}
	if got := cfg.GetDBPath(); got != "/data/user/0/gyrohook/gyrohook.db" {
		t.Errorf("GetDBPath() = %q, want a file in the data dir", got)
	}
	if got := cfg.GetListenPort(); got != 20000 {
		t.Errorf("GetListenPort() = %d", got)
	}
	if got := cfg.GetPollInterval(); got != 250*time.Millisecond {
		t.Errorf("GetPollInterval() = %v", got)
	}
	if got := cfg.GetSerialPort(); got != "/dev/ttyUSB0" {
		t.Errorf("GetSerialPort() = %q", got)
	}
	if got := cfg.GetHistoryLimit(); got != 50 {
		t.Errorf("GetHistoryLimit() = %d", got)
	}
	// Unset fields keep their defaults.
	if got := cfg.GetMaxFrameBytes(); got != 4096 {
		t.Errorf("GetMaxFrameBytes() = %d", got)
	}
}

func TestLoadServiceConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "gyrohookd.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"listen_port": }`, "failed to parse"},
		{"bad poll interval", "poll.json", `{"poll_interval": "soon"}`, "invalid poll_interval"},
		{"negative poll interval", "neg.json", `{"poll_interval": "-1s"}`, "must be positive"},
		{"tiny frames", "frame.json", `{"max_frame_bytes": 4}`, "max_frame_bytes"},
		{"history", "history.json", `{"history_limit": 0}`, "history_limit"},
		{"baud", "baud.json", `{"serial_baud_rate": -9600}`, "serial_baud_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServiceConfig(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadServiceConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadServiceConfig_InvalidPort(t *testing.T) {
	_, err := LoadServiceConfig(writeConfig(t, "port.json", `{"listen_port": 80}`))
	var verr *calibration.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Value != 80 {
		t.Errorf("ValidationError.Value = %d, want 80", verr.Value)
	}
}

func TestLoadServiceConfig_Missing(t *testing.T) {
	if _, err := LoadServiceConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoadServiceConfig_TooLarge(t *testing.T) {
	big := `{"data_dir": "` + strings.Repeat("a", 1024*1024) + `"}`
	_, err := LoadServiceConfig(writeConfig(t, "big.json", big))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}
