// Package config handles capture agent configuration from YAML files.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level capture configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Store   StoreConfig   `yaml:"store"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	API     APIConfig     `yaml:"api"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote  string `yaml:"remote"`
	Headful bool   `yaml:"headful"`
}

// PageConfig defines a page to capture.
type PageConfig struct {
	ID          string        `yaml:"id"`
	URL         string        `yaml:"url"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
	// DwellTime bounds the session: capture stops this long after the
	// tab opens. Zero means capture until shutdown.
	DwellTime time.Duration `yaml:"dwell_time"`
}

// BufferConfig controls event batching before delivery.
type BufferConfig struct {
	Count      int           `yaml:"count"`
	MaxLatency time.Duration `yaml:"max_latency"`
}

// StoreConfig controls the persistent page store.
type StoreConfig struct {
	Path      string `yaml:"path"`
	MaxEvents int    `yaml:"max_events"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | callback
	URL  string `yaml:"url"`  // for webhook
}

// APIConfig controls the HTTP query API.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Buffer.Count <= 0 {
		c.Buffer.Count = 5
	}
	if c.Buffer.MaxLatency <= 0 {
		c.Buffer.MaxLatency = 500 * time.Millisecond
	}
	if c.Store.Path == "" {
		c.Store.Path = "drdom.db"
	}
	if c.Store.MaxEvents <= 0 {
		c.Store.MaxEvents = 1500
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8700"
	}
	for i := range c.Pages {
		if c.Pages[i].LoadTimeout <= 0 {
			c.Pages[i].LoadTimeout = 30 * time.Second
		}
	}
}
