package icp

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Settings: DefaultSettings(),
		Scenario: ScenarioConfig{
			Points:      60,
			Seed:        1,
			Extent:      100,
			RotationDeg: 5,
			Translation: []float64{1, 1},
		},
		LogLevel: "info",
	}
}

// LoadConfig loads the configuration from a YAML file. Fields missing from
// the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("config file not found: %s", path)
		}
		return nil, errors.Wrap(err, "reading config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "parsing config YAML")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "marshaling config YAML")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "writing config file")
	}

	return nil
}

// Validate checks the configuration for values the engine or scenario builder would reject.
func (c *Config) Validate() error {
	if err := c.Settings.Validate(); err != nil {
		return errors.Wrap(err, "settings")
	}
	if err := c.Scenario.Validate(c.Settings.Dimensionality); err != nil {
		return errors.Wrap(err, "scenario")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel, defaulting to info when unset.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(ErrInvalidInput, "log level %q", c.LogLevel)
	}
	return level, nil
}
