package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models bookline.yml.
type Config struct {
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Webhooks    []WebhookConfig   `yaml:"webhooks"`
}

// MarketplaceConfig controls paging of the operator-facing listing.
type MarketplaceConfig struct {
	PageSize    int `yaml:"page_size"`
	MaxPageSize int `yaml:"max_page_size"`
}

// WebhookConfig describes one notification endpoint fed from the event log.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Marketplace.PageSize = 50
	cfg.Marketplace.MaxPageSize = 200
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Marketplace.PageSize <= 0 {
		return fmt.Errorf("config.marketplace.page_size must be positive")
	}
	if c.Marketplace.MaxPageSize < c.Marketplace.PageSize {
		return fmt.Errorf("config.marketplace.max_page_size must be >= page_size")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			if evt == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event filter entry", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bookline.yml")
}

// Load reads config from the workspace, falling back to defaults when
// the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// unset inherit the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
