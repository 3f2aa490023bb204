// Package config provides configuration loading for the simulator.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all run configuration.
type Config struct {
	Sim       SimConfig       `yaml:"sim"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
	Species   SpeciesConfig   `yaml:"species"`
}

// SimConfig controls the tick loop and the population engine.
type SimConfig struct {
	Seed             int64         `yaml:"seed"`
	MaxTicks         uint64        `yaml:"max_ticks"`
	Interval         time.Duration `yaml:"interval"`
	Speed            float64       `yaml:"speed"`
	ReportEvery      uint64        `yaml:"report_every"`
	BirthMode        string        `yaml:"birth_mode"`
	StopOnExtinction bool          `yaml:"stop_on_extinction"`
	TrueRandom       bool          `yaml:"true_random"`
}

// StorageConfig controls SQLite persistence.
type StorageConfig struct {
	Path      string `yaml:"path"`
	SaveEvery uint64 `yaml:"save_every"`
	Resume    bool   `yaml:"resume"`
}

// TelemetryConfig controls CSV output.
type TelemetryConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// SpeciesConfig points at the species definitions file.
type SpeciesConfig struct {
	Path string `yaml:"path"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merged over embedded defaults.
// If path is empty, only the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file are overwritten.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the run.
func (c *Config) Validate() error {
	switch c.Sim.BirthMode {
	case "", "scaled", "absolute", "off":
	default:
		return fmt.Errorf("config: sim.birth_mode %q must be scaled, absolute or off", c.Sim.BirthMode)
	}
	if c.Sim.Speed < 0 {
		return fmt.Errorf("config: sim.speed must not be negative")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("config: api.port %d out of range", c.API.Port)
	}
	return nil
}

// WriteYAML saves the configuration as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
