package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models briefline.yml.
type Config struct {
	Review struct {
		FactCheck struct {
			Threshold float64 `yaml:"threshold"`
		} `yaml:"fact_check"`
	} `yaml:"review"`
	Export struct {
		RequirePublished *bool    `yaml:"require_published"`
		DefaultFormats   []string `yaml:"default_formats"`
	} `yaml:"export"`
	Roles struct {
		Catalog map[string]RoleConfig `yaml:"catalog"`
	} `yaml:"roles"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type RoleConfig struct {
	Description string `yaml:"description"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Threshold returns the fact-check acceptance threshold.
func (c *Config) Threshold() float64 {
	if c.Review.FactCheck.Threshold == 0 {
		return 0.90
	}
	return c.Review.FactCheck.Threshold
}

// RequirePublished reports whether export is gated on published state.
func (c *Config) RequirePublished() bool {
	if c.Export.RequirePublished == nil {
		return true
	}
	return *c.Export.RequirePublished
}

// KnownRole reports whether a role id exists in the catalog. An empty
// catalog accepts any role.
func (c *Config) KnownRole(role string) bool {
	if len(c.Roles.Catalog) == 0 {
		return true
	}
	_, ok := c.Roles.Catalog[role]
	return ok
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run bl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the workspace file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if t := c.Review.FactCheck.Threshold; t != 0 && (t <= 0 || t > 1) {
		return fmt.Errorf("config.review.fact_check.threshold must be in (0,1]")
	}
	for _, f := range c.Export.DefaultFormats {
		if f == "" {
			return fmt.Errorf("config.export.default_formats contains empty format")
		}
	}
	for roleID := range c.Roles.Catalog {
		if roleID == "" {
			return fmt.Errorf("config.roles.catalog contains empty role id")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "briefline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `review:
  fact_check:
    threshold: 0.90

export:
  require_published: true
  default_formats: [text, markdown, document]

roles:
  catalog:
    strategy-lead:
      description: "Owns the engagement narrative and final recommendations"
    market-analyst:
      description: "Gathers and interprets market and competitor data"
    financial-modeler:
      description: "Builds projections and validates figures"
    research-associate:
      description: "Collects sources and drafts supporting material"
    delivery-manager:
      description: "Tracks progress and coordinates deliverable review"
`
