package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
serial:
  ports:
    - /dev/ttyACM0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Serial.BaudRate != 460800 {
		t.Fatalf("expected default baud rate 460800, got %d", cfg.Serial.BaudRate)
	}
	if cfg.Serial.QueueLen != 64 {
		t.Fatalf("expected default queue length 64, got %d", cfg.Serial.QueueLen)
	}
	if cfg.Window.Size() != 1000 {
		t.Fatalf("expected default window of 1000 samples, got %d", cfg.Window.Size())
	}
	if cfg.Publish.Interval() != 50*time.Millisecond {
		t.Fatalf("expected default publish interval 50ms, got %s", cfg.Publish.Interval())
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.Web.Addr != ":8080" {
		t.Fatalf("expected default web addr :8080, got %s", cfg.Web.Addr)
	}
	if cfg.LogFile != "emg-receiver.logs" {
		t.Fatalf("expected default log file, got %s", cfg.LogFile)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
serial:
  ports:
    - /dev/ttyACM0
    - /dev/ttyACM1
  baud_rate: 115200
window:
  sample_rate: 250
  seconds: 4
publish:
  interval_ms: 100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if len(cfg.Serial.Ports) != 2 || cfg.Serial.BaudRate != 115200 {
		t.Fatalf("serial overrides not applied: %+v", cfg.Serial)
	}
	if cfg.Window.Size() != 1000 {
		t.Fatalf("expected 250*4 window, got %d", cfg.Window.Size())
	}
	if cfg.Publish.Interval() != 100*time.Millisecond {
		t.Fatalf("expected 100ms interval, got %s", cfg.Publish.Interval())
	}
}

func TestLoadRequiresPorts(t *testing.T) {
	path := writeConfig(t, `
window:
  sample_rate: 500
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a config without serial ports")
	}
}
