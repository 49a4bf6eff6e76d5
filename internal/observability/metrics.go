package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// KernelCollector bundles Prometheus metrics for the tick-scheduling kernel
// and provides a ready-to-use /metrics handler. It satisfies the tick
// engine's MetricsRecorder interface so the engine can drive it directly.
type KernelCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal             prometheus.Counter
	StridesExecutedTotal   prometheus.Counter
	EarlyTerminationsTotal prometheus.Counter
	TickDuration           prometheus.Histogram
	StrideCost             prometheus.Histogram
	NextInterval           prometheus.Gauge
	ActiveSubentities      prometheus.Gauge
}

// NewKernelCollector registers kernel metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewKernelCollector(reg prometheus.Registerer) (*KernelCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kernel_ticks_total",
		Help: "Cumulative number of completed ticks.",
	}), "kernel_ticks_total")
	if err != nil {
		return nil, err
	}

	strides, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kernel_strides_executed_total",
		Help: "Cumulative number of strides executed across all ticks.",
	}), "kernel_strides_executed_total")
	if err != nil {
		return nil, err
	}

	earlyTerms, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kernel_early_terminations_total",
		Help: "Cumulative number of ticks cut short by deadline pressure.",
	}), "kernel_early_terminations_total")
	if err != nil {
		return nil, err
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kernel_tick_duration_seconds",
		Help:    "Wall-clock duration of tick execution (allocate, schedule, strides).",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "kernel_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	strideCost, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kernel_stride_cost_seconds",
		Help:    "Measured wall-clock cost of individual strides.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "kernel_stride_cost_seconds")
	if err != nil {
		return nil, err
	}

	nextInterval, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_next_tick_interval_seconds",
		Help: "Pacer-computed wait before the next tick.",
	}), "kernel_next_tick_interval_seconds")
	if err != nil {
		return nil, err
	}

	subentities, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_active_subentities",
		Help: "Number of subentities that competed in the most recent tick.",
	}), "kernel_active_subentities")
	if err != nil {
		return nil, err
	}

	return &KernelCollector{
		gatherer:               gatherer,
		TicksTotal:             ticks,
		StridesExecutedTotal:   strides,
		EarlyTerminationsTotal: earlyTerms,
		TickDuration:           tickDuration,
		StrideCost:             strideCost,
		NextInterval:           nextInterval,
		ActiveSubentities:      subentities,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *KernelCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *KernelCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records one completed tick.
func (c *KernelCollector) ObserveTick(stridesExecuted int, earlyTerminated bool, d time.Duration) {
	if c == nil {
		return
	}
	if c.TicksTotal != nil {
		c.TicksTotal.Inc()
	}
	if c.StridesExecutedTotal != nil {
		c.StridesExecutedTotal.Add(float64(stridesExecuted))
	}
	if earlyTerminated && c.EarlyTerminationsTotal != nil {
		c.EarlyTerminationsTotal.Inc()
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(d.Seconds())
	}
}

// ObserveStrideCost records one measured stride execution cost.
func (c *KernelCollector) ObserveStrideCost(d time.Duration) {
	if c == nil || c.StrideCost == nil {
		return
	}
	c.StrideCost.Observe(d.Seconds())
}

// SetNextInterval updates the pacer interval gauge.
func (c *KernelCollector) SetNextInterval(seconds float64) {
	if c == nil || c.NextInterval == nil {
		return
	}
	c.NextInterval.Set(seconds)
}

// SetActiveSubentities updates the subentity population gauge.
func (c *KernelCollector) SetActiveSubentities(count int) {
	if c == nil || c.ActiveSubentities == nil {
		return
	}
	c.ActiveSubentities.Set(float64(count))
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
