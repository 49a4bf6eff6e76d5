package core

import (
	"time"

	"github.com/signalsfoundry/stride-kernel/model"
	"github.com/signalsfoundry/stride-kernel/timectrl"
)

// AdaptiveTickPacer decides how long to wait before the next tick. The raw
// interval tracks the time since the last stimulus, clamped to configured
// bounds, so frequent stimuli pin the cadence near the minimum and silence
// lets it decay toward the maximum. Optional EMA smoothing damps the
// transitions. No fixed thresholds are involved beyond the configured bounds.
type AdaptiveTickPacer struct {
	cfg   model.TickSpeedConfig
	clock timectrl.Clock

	lastStimulus *time.Time
	emaInterval  *float64
}

// PacerDiagnostics is the pacer's observability snapshot. The time fields are
// nil until the first stimulus arrives.
type PacerDiagnostics struct {
	LastStimulusTime  *time.Time
	TimeSinceStimulus *time.Duration
	Config            model.TickSpeedConfig
}

// NewAdaptiveTickPacer validates the configuration and constructs a pacer.
// A nil clock falls back to the wall clock.
func NewAdaptiveTickPacer(cfg model.TickSpeedConfig, clock timectrl.Clock) (*AdaptiveTickPacer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timectrl.WallClock{}
	}
	return &AdaptiveTickPacer{cfg: cfg, clock: clock}, nil
}

// OnStimulus records a stimulus arrival at the current clock time.
func (p *AdaptiveTickPacer) OnStimulus() {
	now := p.clock.Now()
	p.lastStimulus = &now
}

// ComputeNextInterval returns the wall-clock seconds to wait before the next
// tick. With no stimulus ever recorded the pacer is fully dormant and returns
// the maximum interval. Otherwise the raw interval is the elapsed time since
// the last stimulus, clamped to [min, max]. When smoothing is enabled, the
// first call seeds the EMA with the raw value and later calls blend new
// samples in with weight EMABeta; the smoothed value is returned and retained.
func (p *AdaptiveTickPacer) ComputeNextInterval() float64 {
	var raw float64
	if p.lastStimulus == nil {
		raw = p.cfg.MaxIntervalS
	} else {
		elapsed := p.clock.Now().Sub(*p.lastStimulus).Seconds()
		raw = clamp(elapsed, p.cfg.MinIntervalMS/1000.0, p.cfg.MaxIntervalS)
	}

	if !p.cfg.EnableEMA {
		return raw
	}
	if p.emaInterval == nil {
		p.emaInterval = &raw
		return raw
	}
	smoothed := p.cfg.EMABeta*raw + (1-p.cfg.EMABeta)*(*p.emaInterval)
	p.emaInterval = &smoothed
	return smoothed
}

// ComputeDT bounds the physics integration step derived from a tick interval.
// It returns the capped dt in seconds and whether capping occurred; hitting
// the cap exactly does not count as capped.
func (p *AdaptiveTickPacer) ComputeDT(interval float64) (float64, bool) {
	if interval > p.cfg.DTCapS {
		return p.cfg.DTCapS, true
	}
	return interval, false
}

// Diagnostics returns the pacer's current observable state. It drives no
// decisions.
func (p *AdaptiveTickPacer) Diagnostics() PacerDiagnostics {
	diag := PacerDiagnostics{Config: p.cfg}
	if p.lastStimulus != nil {
		ts := *p.lastStimulus
		diag.LastStimulusTime = &ts
		since := p.clock.Now().Sub(ts)
		diag.TimeSinceStimulus = &since
	}
	return diag
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
