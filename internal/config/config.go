package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Window  WindowConfig  `yaml:"window"`
	Publish PublishConfig `yaml:"publish"`
	Metrics MetricsConfig `yaml:"metrics"`
	Web     WebConfig     `yaml:"web"`
	Influx  InfluxConfig  `yaml:"influx"`
	LogFile string        `yaml:"log_file"`
}

type SerialConfig struct {
	// BLE bridge ports, one per dongle. Both feed the same pipeline; the
	// packet header decides which device a payload belongs to.
	Ports    []string `yaml:"ports"`
	BaudRate int      `yaml:"baud_rate"`
	QueueLen int      `yaml:"queue_len"`
}

type WindowConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Seconds    int `yaml:"seconds"`
}

// Size is the per-channel window capacity in samples.
func (w WindowConfig) Size() int {
	return w.SampleRate * w.Seconds
}

type PublishConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// Interval is the display frame cadence.
func (p PublishConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type InfluxConfig struct {
	// telegraf UDP listener; leave empty to disable the influx sink
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = 460800
	}
	if c.Serial.QueueLen == 0 {
		c.Serial.QueueLen = 64
	}
	if c.Window.SampleRate == 0 {
		c.Window.SampleRate = 500
	}
	if c.Window.Seconds == 0 {
		c.Window.Seconds = 2
	}
	if c.Publish.IntervalMs == 0 {
		c.Publish.IntervalMs = 50
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8080"
	}
	if c.LogFile == "" {
		c.LogFile = "emg-receiver.logs"
	}
}

func (c *Config) validate() error {
	if len(c.Serial.Ports) == 0 {
		return fmt.Errorf("serial.ports requires at least one bridge port")
	}
	if c.Window.Size() <= 0 {
		return fmt.Errorf("window.sample_rate and window.seconds must be positive")
	}
	if c.Publish.IntervalMs < 0 {
		return fmt.Errorf("publish.interval_ms must not be negative")
	}
	return nil
}
