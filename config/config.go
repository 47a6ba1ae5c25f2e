// Package config holds node startup settings and their YAML loading.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds all configuration for a data-holding node.
type Config struct {
	Node     NodeConfig
	Contexts ContextsConfig
	Storage  StorageConfig
	HTTP     HTTPConfig
}

// NodeConfig describes the identity of the node.
type NodeConfig struct {
	NodeID string
}

// ContextsConfig controls the reader-context table and reaper.
type ContextsConfig struct {
	// ReapInterval is the background scan interval for expired contexts.
	ReapInterval time.Duration

	// MaxKeepAlive is the ceiling accepted for open/renew keepalives.
	MaxKeepAlive time.Duration

	// MaxOpenContexts bounds concurrently open contexts. 0 is unlimited.
	MaxOpenContexts int64

	// OpenRatePerSec throttles context creation. 0 is unlimited.
	OpenRatePerSec float64
}

// StorageConfig covers partition behavior.
type StorageConfig struct {
	// SearchIdleAfter is how long a partition must go without live
	// searches before it is considered search-idle.
	SearchIdleAfter time.Duration
}

// HTTPConfig covers RPC exposure.
type HTTPConfig struct {
	ListenAddress string
	Port          int
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Node: NodeConfig{NodeID: "node-1"},
		Contexts: ContextsConfig{
			ReapInterval: time.Minute,
			MaxKeepAlive: 24 * time.Hour,
		},
		Storage: StorageConfig{
			SearchIdleAfter: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			ListenAddress: "0.0.0.0",
			Port:          8080,
		},
	}
}

// fileConfig is the YAML shape; durations are human-readable strings.
type fileConfig struct {
	Node struct {
		NodeID string `yaml:"node_id"`
	} `yaml:"node"`
	Contexts struct {
		ReapInterval    string  `yaml:"reap_interval"`
		MaxKeepAlive    string  `yaml:"max_keep_alive"`
		MaxOpenContexts int64   `yaml:"max_open_contexts"`
		OpenRatePerSec  float64 `yaml:"open_rate_per_sec"`
	} `yaml:"contexts"`
	Storage struct {
		SearchIdleAfter string `yaml:"search_idle_after"`
	} `yaml:"storage"`
	HTTP struct {
		ListenAddress string `yaml:"listen_address"`
		Port          int    `yaml:"port"`
	} `yaml:"http"`
}

// Load reads a YAML settings file, layering it over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML settings, layering them over Default.
func Parse(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	cfg := Default()
	if fc.Node.NodeID != "" {
		cfg.Node.NodeID = fc.Node.NodeID
	}
	if err := setDuration(&cfg.Contexts.ReapInterval, fc.Contexts.ReapInterval, "contexts.reap_interval"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Contexts.MaxKeepAlive, fc.Contexts.MaxKeepAlive, "contexts.max_keep_alive"); err != nil {
		return Config{}, err
	}
	if fc.Contexts.MaxOpenContexts > 0 {
		cfg.Contexts.MaxOpenContexts = fc.Contexts.MaxOpenContexts
	}
	if fc.Contexts.OpenRatePerSec > 0 {
		cfg.Contexts.OpenRatePerSec = fc.Contexts.OpenRatePerSec
	}
	if err := setDuration(&cfg.Storage.SearchIdleAfter, fc.Storage.SearchIdleAfter, "storage.search_idle_after"); err != nil {
		return Config{}, err
	}
	if fc.HTTP.ListenAddress != "" {
		cfg.HTTP.ListenAddress = fc.HTTP.ListenAddress
	}
	if fc.HTTP.Port > 0 {
		cfg.HTTP.Port = fc.HTTP.Port
	}
	return cfg, nil
}

func setDuration(dst *time.Duration, raw, key string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}
