package capture

import (
	"github.com/drdom/drdom/capture/internal/config"
)

// Config is the top-level capture configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to capture.
type PageConfig = config.PageConfig

// BufferConfig controls event batching before delivery.
type BufferConfig = config.BufferConfig

// StoreConfig controls the persistent page store.
type StoreConfig = config.StoreConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// APIConfig controls the HTTP query API.
type APIConfig = config.APIConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
