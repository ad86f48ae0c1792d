// Package config holds application configuration, loadable from a
// YAML file with struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Profile is the on-device user profile used for calorie and distance
// estimation. Values must fit the single byte the wire format allots.
type Profile struct {
	WeightKg     float64 `yaml:"weight_kg" default:"70"`
	HeightCm     int     `yaml:"height_cm" default:"170"`
	Gender       int     `yaml:"gender" default:"0"`
	AgeYears     int     `yaml:"age_years" default:"30"`
	StepLengthCm int     `yaml:"step_length_cm" default:"75"`
}

// Config holds application configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	SyncTimeout    time.Duration `yaml:"sync_timeout" default:"20s"`
	AllowList      []string      `yaml:"allow_list"`
	BlockList      []string      `yaml:"block_list"`
	Profile        Profile       `yaml:"profile"`
}

// DefaultConfig returns configuration with default values applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a logger configured from the config's log level.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
