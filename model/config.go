package model

import "fmt"

// TickSpeedConfig governs adaptive tick pacing and physics dt capping.
// Instances are treated as immutable once handed to a pacer.
type TickSpeedConfig struct {
	// MinIntervalMS is the minimum tick interval in milliseconds (fastest rate).
	MinIntervalMS float64 `yaml:"min_interval_ms"`
	// MaxIntervalS is the maximum tick interval in seconds (slowest rate).
	MaxIntervalS float64 `yaml:"max_interval_s"`
	// DTCapS bounds the physics integration step in seconds.
	DTCapS float64 `yaml:"dt_cap_s"`
	// EMABeta is the weight on the newest interval sample, in (0, 1].
	EMABeta float64 `yaml:"ema_beta"`
	// EnableEMA toggles interval smoothing.
	EnableEMA bool `yaml:"enable_ema"`
}

// DefaultTickSpeedConfig returns the standard pacing configuration:
// 100ms floor (10 Hz), 60s dormant ceiling, 5s dt cap, smoothed.
func DefaultTickSpeedConfig() TickSpeedConfig {
	return TickSpeedConfig{
		MinIntervalMS: 100.0,
		MaxIntervalS:  60.0,
		DTCapS:        5.0,
		EMABeta:       0.3,
		EnableEMA:     true,
	}
}

// Validate rejects configurations that would make pacing nonsensical.
// Configuration errors are surfaced before any state mutation, never clamped.
func (c TickSpeedConfig) Validate() error {
	if c.MinIntervalMS <= 0 {
		return fmt.Errorf("tick speed config: min_interval_ms must be positive, got %v", c.MinIntervalMS)
	}
	if c.MaxIntervalS <= 0 {
		return fmt.Errorf("tick speed config: max_interval_s must be positive, got %v", c.MaxIntervalS)
	}
	if c.MinIntervalMS/1000.0 > c.MaxIntervalS {
		return fmt.Errorf("tick speed config: min interval %vms exceeds max interval %vs", c.MinIntervalMS, c.MaxIntervalS)
	}
	if c.DTCapS <= 0 {
		return fmt.Errorf("tick speed config: dt_cap_s must be positive, got %v", c.DTCapS)
	}
	if c.EnableEMA && (c.EMABeta <= 0 || c.EMABeta > 1) {
		return fmt.Errorf("tick speed config: ema_beta must be in (0, 1], got %v", c.EMABeta)
	}
	return nil
}
