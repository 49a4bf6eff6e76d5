package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/stride-kernel/core"
	"github.com/signalsfoundry/stride-kernel/graph"
	"github.com/signalsfoundry/stride-kernel/internal/logging"
	"github.com/signalsfoundry/stride-kernel/internal/observability"
	"github.com/signalsfoundry/stride-kernel/model"
)

// diffusionDecay is the per-stride retention factor applied to the source
// node; the shed fraction spreads to neighbours proportionally to link
// weight.
const diffusionDecay = 0.9

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	scenarioPath := flag.String("scenario", "", "Path to a JSON scenario file (required)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	budget := flag.Int("budget", 0, "Per-tick stride budget (overrides config)")
	deadlineMS := flag.Int("deadline-ms", 0, "Per-tick deadline in milliseconds (overrides config)")
	maxTicks := flag.Int("max-ticks", -1, "Stop after this many ticks; 0 runs until interrupted (overrides config)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, log := logging.WithRunLogger(context.Background(), log)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *budget > 0 {
		cfg.StrideBudget = *budget
	}
	if *deadlineMS > 0 {
		cfg.TickDeadlineMS = *deadlineMS
	}
	if *maxTicks >= 0 {
		cfg.MaxTicks = *maxTicks
	}
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.String("error", err.Error()))
		os.Exit(1)
	}

	if *scenarioPath == "" {
		log.Error(ctx, "a scenario file is required; pass -scenario")
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewKernelCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	g := graph.New()
	scenario, err := loadScenarioFile(g, *scenarioPath)
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info(ctx, "scenario loaded",
		logging.String("path", *scenarioPath),
		logging.Int("nodes", len(scenario.NodeIDs)),
		logging.Int("links", scenario.LinkCount),
		logging.Int("subentities", len(scenario.Subentities)),
		logging.Int("stimuli", len(scenario.Stimuli)),
	)

	engine, err := core.NewTickEngine(g, diffusionStride(g),
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
		core.WithTickSpeed(cfg.TickSpeed),
	)
	if err != nil {
		log.Error(ctx, "failed to construct tick engine", logging.String("error", err.Error()))
		os.Exit(1)
	}

	for _, stim := range scenario.Stimuli {
		engine.OnStimulus(ctx, stim)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	runLoop(runCtx, log, engine, scenario.Subentities, cfg)

	log.Info(ctx, "shutting down", logging.Int("ticks_completed", engine.TickCount()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// runLoop drives ticks at the pacer's cadence until the context is cancelled
// or the configured tick limit is reached.
func runLoop(ctx context.Context, log logging.Logger, engine *core.TickEngine, subs []*model.Subentity, cfg Config) {
	deadlineBudget := time.Duration(cfg.TickDeadlineMS) * time.Millisecond

	for tick := 0; cfg.MaxTicks == 0 || tick < cfg.MaxTicks; tick++ {
		intervalS, dtS, dtCapped := engine.NextTick()
		log.Debug(ctx, "pacing next tick",
			logging.Float64("interval_s", intervalS),
			logging.Float64("dt_s", dtS),
			logging.Bool("dt_capped", dtCapped),
		)

		timer := time.NewTimer(time.Duration(intervalS * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		report, err := engine.ExecuteTick(ctx, subs, cfg.StrideBudget, time.Now().Add(deadlineBudget))
		if err != nil {
			log.Error(ctx, "tick failed", logging.String("error", err.Error()))
			return
		}
		if report.EarlyTerminated {
			log.Warn(ctx, "tick hit its deadline",
				logging.Int("tick", report.Tick),
				logging.Int("strides_executed", report.StridesExecuted),
				logging.Int("strides_planned", report.StridesPlanned),
			)
		}
	}
}

// diffusionStride is the default stride executor: each stride sheds a
// fraction of the energy at one extent node onto its neighbours, split by
// link weight. Subentities with an empty extent are a no-op.
func diffusionStride(g *graph.Graph) core.StrideFunc {
	return func(_ context.Context, sub *model.Subentity, entry model.ScheduleEntry) error {
		if sub == nil || sub.ExtentSize() == 0 {
			return nil
		}
		nodeID := sub.Extent[entry.StrideIndex%sub.ExtentSize()]
		node := g.Node(nodeID)
		if node == nil {
			return nil
		}

		energy := core.GetEnergy(node, sub.ID)
		if energy == 0 {
			return nil
		}

		neighbours := g.Neighbors(nodeID)
		if len(neighbours) == 0 {
			return nil
		}

		var totalWeight float64
		for _, nb := range neighbours {
			totalWeight += g.LinkWeight(nodeID, nb)
		}
		if totalWeight == 0 {
			return nil
		}

		shed := energy * (1 - diffusionDecay)
		for _, nb := range neighbours {
			target := g.Node(nb)
			if target == nil {
				continue
			}
			share := g.LinkWeight(nodeID, nb) / totalWeight
			core.AddEnergy(target, sub.ID, shed*share)
		}
		core.MultiplyEnergy(node, sub.ID, diffusionDecay)
		return nil
	}
}

func loadScenarioFile(g *graph.Graph, path string) (*core.Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return core.LoadScenario(g, f)
}

func serveMetrics(addr string, collector *observability.KernelCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
