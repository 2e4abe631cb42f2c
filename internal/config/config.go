package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"shiftpost/internal/pay"
)

// Config models shiftpost.yml.
type Config struct {
	Pay struct {
		Rates          map[string]float64 `yaml:"rates"`
		RushMultiplier float64            `yaml:"rush_multiplier"`
	} `yaml:"pay"`
	Lifecycle struct {
		CancelWindowMinutes int `yaml:"cancel_window_minutes"`
	} `yaml:"lifecycle"`
	Reviews struct {
		AgencyTraits  []string `yaml:"agency_traits"`
		OfficerTraits []string `yaml:"officer_traits"`
	} `yaml:"reviews"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// Table builds the pay table from the configured rates.
func (c *Config) Table() pay.Table {
	return pay.Table{Rates: c.Pay.Rates, RushMultiplier: c.Pay.RushMultiplier}
}

// Traits returns the allowed trait vocabulary for a review side.
func (c *Config) Traits(side string) []string {
	if side == "agency" {
		return c.Reviews.AgencyTraits
	}
	return c.Reviews.OfficerTraits
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Pay.Rates) == 0 {
		return fmt.Errorf("config.pay.rates is required")
	}
	for rank, rate := range c.Pay.Rates {
		if rank == "" {
			return fmt.Errorf("config.pay.rates contains empty rank")
		}
		if rate <= 0 {
			return fmt.Errorf("rate for rank %s must be positive", rank)
		}
	}
	if c.Pay.RushMultiplier < 1 {
		return fmt.Errorf("config.pay.rush_multiplier must be >= 1")
	}
	if c.Lifecycle.CancelWindowMinutes <= 0 {
		return fmt.Errorf("config.lifecycle.cancel_window_minutes must be positive")
	}
	if len(c.Reviews.AgencyTraits) == 0 || len(c.Reviews.OfficerTraits) == 0 {
		return fmt.Errorf("config.reviews trait vocabularies are required")
	}
	for _, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks entry missing url")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "shiftpost.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with sp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
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

// Default returns the built-in Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

const defaultTemplate = `pay:
  rates:
    SO: 12.5
    SSO: 13.5
    SS: 15
    SSS: 16.5
    CSO: 18
  rush_multiplier: 1.2

lifecycle:
  cancel_window_minutes: 30

reviews:
  agency_traits:
    - Punctual
    - Well Groomed
    - Polite
    - Alert
    - Team Player
  officer_traits:
    - Clear Instructions
    - Good Communication
    - Respectful
    - Efficient Process
    - Fair Pay
`
