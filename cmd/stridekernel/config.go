package main

import (
	"fmt"
	"os"

	"github.com/signalsfoundry/stride-kernel/model"
	"gopkg.in/yaml.v3"
)

// Config is the kernel daemon's YAML configuration. Zero-valued fields fall
// back to defaults, so a partial file is fine.
type Config struct {
	MetricsAddr    string                `yaml:"metrics_addr"`
	StrideBudget   int                   `yaml:"stride_budget"`
	TickDeadlineMS int                   `yaml:"tick_deadline_ms"`
	MaxTicks       int                   `yaml:"max_ticks"` // 0 means run until interrupted
	TickSpeed      model.TickSpeedConfig `yaml:"tick_speed"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:    ":9090",
		StrideBudget:   64,
		TickDeadlineMS: 250,
		MaxTicks:       0,
		TickSpeed:      model.DefaultTickSpeedConfig(),
	}
}

// Validate rejects configurations the kernel cannot run with.
func (c Config) Validate() error {
	if c.StrideBudget < 1 {
		return fmt.Errorf("config: stride_budget must be positive, got %d", c.StrideBudget)
	}
	if c.TickDeadlineMS < 1 {
		return fmt.Errorf("config: tick_deadline_ms must be positive, got %d", c.TickDeadlineMS)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("config: max_ticks must be non-negative, got %d", c.MaxTicks)
	}
	if err := c.TickSpeed.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML config file over the defaults. An empty path yields
// the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
