// Package config provides configuration loading for pipeline commands
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no other is given.
const DefaultPath = "quartic.yml"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the content of quartic.yml. Command-line flags override every field.
type Config struct {
	Namespace        string   `yaml:"namespace" validate:"excludes=:"`
	Modules          []string `yaml:"modules"`
	StoreURL         string   `yaml:"store_url"`
	StoreToken       string   `yaml:"store_token"`
	CheckpointURL    string   `yaml:"checkpoint_url"`
	EventBus         string   `yaml:"event_bus" validate:"oneof=none gochannel kafka"`
	KafkaBrokers     string   `yaml:"kafka_brokers" validate:"required_if=EventBus kafka"`
	LogLevel         string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	CheckRawDatasets bool     `yaml:"check_raw_datasets"`
	API              API      `yaml:"api"`
	Tracing          Tracing  `yaml:"tracing"`
}

type API struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name" validate:"required_if=Enabled true"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		StoreURL: "memory://",
		EventBus: "none",
		LogLevel: "info",
		API:      API{Port: 9000},
		Tracing:  Tracing{ServiceName: "quartic"},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, falling back to the defaults when path does not exist. Any other
// problem with the file is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Validate checks the configuration after flags have been applied.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
