package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/stride-kernel/graph"
	"github.com/signalsfoundry/stride-kernel/internal/logging"
	"github.com/signalsfoundry/stride-kernel/model"
	"github.com/signalsfoundry/stride-kernel/timectrl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultRecentStimulusLimit bounds the engine's retained stimulus window.
const defaultRecentStimulusLimit = 64

// StrideFunc executes one stride of work on behalf of a subentity. The engine
// treats it as opaque: a failing stride is logged and counted, but its quota
// is still spent and the tick moves on.
type StrideFunc func(ctx context.Context, sub *model.Subentity, entry model.ScheduleEntry) error

// MetricsRecorder receives tick-level measurements. The observability
// package's KernelCollector satisfies it; a nil recorder disables recording.
type MetricsRecorder interface {
	ObserveTick(stridesExecuted int, earlyTerminated bool, d time.Duration)
	ObserveStrideCost(d time.Duration)
	SetNextInterval(seconds float64)
	SetActiveSubentities(count int)
}

// TickListener is notified after every completed tick.
type TickListener func(report TickReport)

// TickReport summarises one executed tick.
type TickReport struct {
	Tick            int
	StridesPlanned  int
	StridesExecuted int
	StrideErrors    int
	StrideCounts    map[string]int
	Quotas          map[string]int
	EarlyTerminated bool
	Duration        time.Duration
}

// TickEngine orchestrates one tick: allocate quotas across the subentity
// population, build the zippered schedule, then execute strides while
// consulting the deadline monitor between them.
type TickEngine struct {
	graph   *graph.Graph
	stride  StrideFunc
	clock   timectrl.Clock
	log     logging.Logger
	metrics MetricsRecorder
	scorer  ReachabilityScorer
	tracer  trace.Tracer

	pacer    *AdaptiveTickPacer
	deadline *DeadlineMonitor

	mu            sync.Mutex
	tick          int
	recentStimuli []model.Stimulus
	recentLimit   int
	listeners     []TickListener
}

// EngineOption customises TickEngine construction.
type EngineOption func(*engineOptions)

type engineOptions struct {
	clock       timectrl.Clock
	log         logging.Logger
	metrics     MetricsRecorder
	scorer      ReachabilityScorer
	tickSpeed   model.TickSpeedConfig
	recentLimit int
}

// WithClock injects a clock, typically a ManualClock in tests.
func WithClock(c timectrl.Clock) EngineOption {
	return func(o *engineOptions) { o.clock = c }
}

// WithLogger injects the engine logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(o *engineOptions) { o.log = l }
}

// WithMetricsRecorder injects a metrics sink.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(o *engineOptions) { o.metrics = m }
}

// WithReachabilityScorer overrides the reachability policy used during
// allocation.
func WithReachabilityScorer(s ReachabilityScorer) EngineOption {
	return func(o *engineOptions) { o.scorer = s }
}

// WithTickSpeed configures the adaptive pacer.
func WithTickSpeed(cfg model.TickSpeedConfig) EngineOption {
	return func(o *engineOptions) { o.tickSpeed = cfg }
}

// WithRecentStimulusLimit bounds how many recent stimuli the engine retains
// for allocation.
func WithRecentStimulusLimit(n int) EngineOption {
	return func(o *engineOptions) { o.recentLimit = n }
}

// NewTickEngine constructs an engine over the given graph and stride
// executor.
func NewTickEngine(g *graph.Graph, stride StrideFunc, opts ...EngineOption) (*TickEngine, error) {
	if g == nil {
		return nil, fmt.Errorf("tick engine: graph must not be nil")
	}
	if stride == nil {
		return nil, fmt.Errorf("tick engine: stride func must not be nil")
	}

	options := engineOptions{
		clock:       timectrl.WallClock{},
		log:         logging.Noop(),
		scorer:      GraphProximityReachability{},
		tickSpeed:   model.DefaultTickSpeedConfig(),
		recentLimit: defaultRecentStimulusLimit,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.clock == nil {
		options.clock = timectrl.WallClock{}
	}
	if options.log == nil {
		options.log = logging.Noop()
	}
	if options.scorer == nil {
		options.scorer = GraphProximityReachability{}
	}
	if options.recentLimit < 1 {
		return nil, fmt.Errorf("tick engine: recent stimulus limit must be positive, got %d", options.recentLimit)
	}

	pacer, err := NewAdaptiveTickPacer(options.tickSpeed, options.clock)
	if err != nil {
		return nil, fmt.Errorf("tick engine: %w", err)
	}

	return &TickEngine{
		graph:       g,
		stride:      stride,
		clock:       options.clock,
		log:         options.log,
		metrics:     options.metrics,
		scorer:      options.scorer,
		tracer:      otel.Tracer("stride-kernel/core"),
		pacer:       pacer,
		deadline:    NewDeadlineMonitor(options.clock),
		recentLimit: options.recentLimit,
	}, nil
}

// RegisterTickListener adds a listener invoked after each tick with its
// report. Listeners run synchronously on the tick goroutine.
func (e *TickEngine) RegisterTickListener(fn TickListener) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// OnStimulus ingests a stimulus: assigns an ID when missing, stamps the
// arrival time, notifies the pacer, and retains the stimulus in the bounded
// recent window consumed by allocation. It returns the stimulus as stored.
func (e *TickEngine) OnStimulus(ctx context.Context, stim model.Stimulus) model.Stimulus {
	if stim.ID == "" {
		stim.ID = uuid.NewString()
	}
	if stim.ReceivedAt.IsZero() {
		stim.ReceivedAt = e.clock.Now()
	}

	e.mu.Lock()
	e.pacer.OnStimulus()
	e.recentStimuli = append(e.recentStimuli, stim)
	if len(e.recentStimuli) > e.recentLimit {
		e.recentStimuli = e.recentStimuli[len(e.recentStimuli)-e.recentLimit:]
	}
	e.mu.Unlock()

	e.log.Debug(ctx, "stimulus received",
		logging.String("stimulus_id", stim.ID),
		logging.String("node_id", stim.NodeID),
	)
	return stim
}

// RecentStimuli returns a copy of the retained stimulus window, oldest first.
func (e *TickEngine) RecentStimuli() []model.Stimulus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Stimulus, len(e.recentStimuli))
	copy(out, e.recentStimuli)
	return out
}

// ExecuteTick runs one full tick over the given subentity population with a
// total stride budget and a wall-clock deadline. The deadline is consulted
// after each stride; when the predicted cost of the remaining strides
// overruns the time left, the tick terminates early without touching the
// strides already executed.
func (e *TickEngine) ExecuteTick(ctx context.Context, subs []*model.Subentity, qTotal int, deadline time.Time) (TickReport, error) {
	ctx, span := e.tracer.Start(ctx, "tick.execute")
	defer span.End()

	start := e.clock.Now()
	stimuli := e.RecentStimuli()

	_, allocSpan := e.tracer.Start(ctx, "tick.allocate")
	quotas, err := AllocateQuotas(subs, qTotal, e.graph, stimuli, e.scorer)
	allocSpan.End()
	if err != nil {
		span.RecordError(err)
		return TickReport{}, fmt.Errorf("execute tick: %w", err)
	}

	_, schedSpan := e.tracer.Start(ctx, "tick.schedule")
	schedule := ZipperedSchedule(subs)
	schedSpan.End()

	byID := make(map[string]*model.Subentity, len(subs))
	for _, s := range subs {
		byID[s.ID] = s
	}

	report := TickReport{
		StridesPlanned: len(schedule),
		StrideCounts:   make(map[string]int, len(subs)),
		Quotas:         quotas,
	}

	strideCtx, strideSpan := e.tracer.Start(ctx, "tick.strides")
	for i, entry := range schedule {
		strideStart := e.clock.Now()
		if err := e.stride(strideCtx, byID[entry.SubentityID], entry); err != nil {
			report.StrideErrors++
			e.log.Warn(strideCtx, "stride failed",
				logging.String("subentity_id", entry.SubentityID),
				logging.Int("stride_index", entry.StrideIndex),
				logging.String("error", err.Error()),
			)
		}
		cost := e.clock.Now().Sub(strideStart)

		// The quota was spent when the schedule was built; a failed stride
		// still counts as executed so a broken executor cannot stall a tick.
		report.StridesExecuted++
		report.StrideCounts[entry.SubentityID]++

		e.deadline.ObserveStride(cost)
		if e.metrics != nil {
			e.metrics.ObserveStrideCost(cost)
		}

		remaining := len(schedule) - i - 1
		if remaining > 0 && e.deadline.ShouldTerminate(deadline, remaining) {
			report.EarlyTerminated = true
			e.log.Warn(strideCtx, "tick terminated early under deadline pressure",
				logging.Int("strides_executed", report.StridesExecuted),
				logging.Int("strides_remaining", remaining),
				logging.Float64("avg_stride_us", e.deadline.AvgStrideMicros()),
			)
			break
		}
	}
	strideSpan.End()

	report.Duration = e.clock.Now().Sub(start)

	e.mu.Lock()
	e.tick++
	report.Tick = e.tick
	listeners := make([]TickListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ObserveTick(report.StridesExecuted, report.EarlyTerminated, report.Duration)
		e.metrics.SetActiveSubentities(len(subs))
	}

	span.SetAttributes(
		attribute.Int("tick", report.Tick),
		attribute.Int("strides_planned", report.StridesPlanned),
		attribute.Int("strides_executed", report.StridesExecuted),
		attribute.Bool("early_terminated", report.EarlyTerminated),
	)

	e.log.Info(ctx, "tick complete",
		logging.Int("tick", report.Tick),
		logging.Int("strides_planned", report.StridesPlanned),
		logging.Int("strides_executed", report.StridesExecuted),
		logging.Int("stride_errors", report.StrideErrors),
		logging.Bool("early_terminated", report.EarlyTerminated),
	)

	for _, fn := range listeners {
		fn(report)
	}
	return report, nil
}

// NextTick consults the pacer for the wall-clock wait before the next tick
// and the bounded integration step to hand the stride executor. The interval
// gauge is updated as a side effect.
func (e *TickEngine) NextTick() (intervalS, dtS float64, dtCapped bool) {
	e.mu.Lock()
	intervalS = e.pacer.ComputeNextInterval()
	dtS, dtCapped = e.pacer.ComputeDT(intervalS)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetNextInterval(intervalS)
	}
	return intervalS, dtS, dtCapped
}

// PacerDiagnostics exposes the pacer's observable state.
func (e *TickEngine) PacerDiagnostics() PacerDiagnostics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pacer.Diagnostics()
}

// TickCount returns the number of completed ticks.
func (e *TickEngine) TickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}
