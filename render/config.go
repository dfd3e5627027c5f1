package render

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of domshift serve.
type Config struct {
	Listen       string `yaml:"listen"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	// Sanitize passes request HTML through the bluemonday policy first.
	Sanitize bool `yaml:"sanitize"`
	// FromDOM adds rules declared with data-move-* attributes.
	FromDOM bool      `yaml:"from_dom"`
	Widths  []float64 `yaml:"widths"`
	Height  float64   `yaml:"height"`

	// RulesFile seeds the rules; RuleSet names a rule set in the database
	// that overrides it and is reloaded when it changes.
	RulesFile      string        `yaml:"rules_file"`
	RuleSet        string        `yaml:"rule_set"`
	DBPath         string        `yaml:"db_path"`
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// RateLimit is the per-client request rate; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	NATS     NATSConfig `yaml:"nats"`
	Webhooks []string   `yaml:"webhooks"`
	// LogEvents appends render events to the database event log.
	LogEvents bool `yaml:"log_events"`

	// MCP serves the MCP tools on stdio next to HTTP.
	MCP bool `yaml:"mcp"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 2 << 20
	}
	if len(c.Widths) == 0 {
		c.Widths = []float64{375, 768, 1280}
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.ReloadInterval <= 0 {
		c.ReloadInterval = 2 * time.Second
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimit) + 1
	}
	if c.NATS.Prefix == "" {
		c.NATS.Prefix = "domshift.events"
	}
}

// Validate checks values defaults cannot fix.
func (c *Config) Validate() error {
	for _, w := range c.Widths {
		if w <= 0 {
			return fmt.Errorf("render: config: width %v must be positive", w)
		}
	}
	if c.RuleSet != "" && c.DBPath == "" {
		return fmt.Errorf("render: config: rule_set %q needs db_path", c.RuleSet)
	}
	if c.LogEvents && c.DBPath == "" {
		return fmt.Errorf("render: config: log_events needs db_path")
	}
	return nil
}

// ParseConfig decodes YAML and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("render: config: %w", err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// DefaultConfig is the configuration of an empty file.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}
