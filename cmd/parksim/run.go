package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/parking-simulator/internal/allocation"
	"github.com/signalsfoundry/parking-simulator/internal/command"
	"github.com/signalsfoundry/parking-simulator/internal/logging"
	"github.com/signalsfoundry/parking-simulator/internal/observability"
	"github.com/signalsfoundry/parking-simulator/internal/report"
	"github.com/signalsfoundry/parking-simulator/internal/sim"
	"github.com/signalsfoundry/parking-simulator/layout"
	"github.com/signalsfoundry/parking-simulator/ledger"
	"github.com/signalsfoundry/parking-simulator/timectrl"
	"github.com/spf13/cobra"
)

type runOptions struct {
	layoutPath    string
	tick          time.Duration
	duration      time.Duration
	accelerated   bool
	autoAllocate  bool
	seed          uint64
	refreshEvery  int
	pAdd          float64
	pRemove       float64
	loadBalancing float64
	metricsAddr   string
	reset         bool
	view          bool
	stopTimeout   time.Duration
}

func newRunCmd(global *globalOptions) *cobra.Command {
	defaults := sim.DefaultConfig()
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation until interrupted or for a fixed duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulation(ctx, *opts, cmd.OutOrStdout(), global.logger())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.layoutPath, "layout", "l", "configs/lot.yaml", "layout file (.json, .yaml or .yml)")
	f.DurationVar(&opts.tick, "tick", time.Second, "tick interval")
	f.DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	f.BoolVar(&opts.accelerated, "accelerated", false, "run ticks back to back instead of once per tick interval")
	f.BoolVar(&opts.autoAllocate, "auto-allocate", defaults.AutoAllocate, "generate random arrivals and departures")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed (0 picks one)")
	f.IntVar(&opts.refreshEvery, "refresh-every", defaults.RefreshEvery, "render every N ticks, statistics every 2N")
	f.Float64Var(&opts.pAdd, "p-add", defaults.PAdd, "per-tick arrival probability")
	f.Float64Var(&opts.pRemove, "p-remove", defaults.PRemove, "per-tick departure probability")
	f.Float64Var(&opts.loadBalancing, "load-balancing", 0, "load-balancing weight handed to the allocator, in [0, 1]")
	f.StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "HTTP address for /metrics and /healthz (empty disables)")
	f.BoolVar(&opts.reset, "reset", true, "free every space before the first tick")
	f.BoolVar(&opts.view, "view", true, "print the lot on every view refresh")
	f.DurationVar(&opts.stopTimeout, "stop-timeout", defaults.StopTimeout, "how long to wait for the tick loop on shutdown")
	return cmd
}

func runSimulation(ctx context.Context, opts runOptions, out io.Writer, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}

	tracingCfg, err := observability.TracingConfigFromEnv()
	if err != nil {
		return fmt.Errorf("tracing config: %w", err)
	}
	tracingCfg.Synchronous = tracingCfg.Synchronous || opts.accelerated
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lay, err := layout.Load(ctx, opts.layoutPath, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	ledgerMetrics, err := observability.NewLedgerCollector(reg)
	if err != nil {
		return fmt.Errorf("ledger metrics: %w", err)
	}
	schedMetrics, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		return fmt.Errorf("scheduler metrics: %w", err)
	}

	mode := timectrl.RealTime
	if opts.accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(time.Now().UTC(), opts.tick, mode)

	store := ledger.New(log, ledger.WithMetricsRecorder(ledgerMetrics), ledger.WithClock(clock))
	queue := command.NewQueue(command.WithDepthRecorder(schedMetrics))
	sink := report.NewLogSink(log)

	coord := allocation.NewCoordinator(store, queue, allocation.NewBaseline(opts.loadBalancing), log,
		allocation.WithReporter(sink))

	dispatcherOpts := []sim.DispatcherOption{
		sim.WithSpawner(coord),
		sim.WithSink(sink),
		sim.WithLogger(log),
		sim.WithCommandMetrics(schedMetrics),
		sim.WithAllocationMetrics(ledgerMetrics),
		sim.WithLoadBalancingWeight(opts.loadBalancing),
	}
	if opts.view {
		dispatcherOpts = append(dispatcherOpts, sim.WithVisualizer(report.NewTextRenderer(out)))
	}
	if opts.seed != 0 {
		dispatcherOpts = append(dispatcherOpts, sim.WithSeed(opts.seed))
	}
	dispatcher, err := sim.NewDispatcher(store, lay, dispatcherOpts...)
	if err != nil {
		return err
	}
	dispatcher.Initialize(ctx, clock.Now())
	if opts.reset {
		if _, err := queue.Enqueue(command.Reset()); err != nil {
			return err
		}
	}

	cfg := sim.Config{
		PAdd:         opts.pAdd,
		PRemove:      opts.pRemove,
		RefreshEvery: opts.refreshEvery,
		AutoAllocate: opts.autoAllocate,
		Seed:         opts.seed,
		StopTimeout:  opts.stopTimeout,
	}
	scheduler := sim.NewScheduler(cfg, queue, dispatcher, store, clock,
		sim.WithTickMetrics(schedMetrics),
		sim.WithSchedulerLogger(log),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if opts.metricsAddr != "" {
		srv := observability.NewMetricsServer(opts.metricsAddr, reg, log)
		go func() {
			if err := srv.Serve(runCtx); err != nil {
				log.Warn(ctx, "metrics server exited", logging.Err(err))
			}
		}()
	}

	if err := scheduler.Start(runCtx); err != nil {
		return err
	}
	<-runCtx.Done()

	stopErr := scheduler.Shutdown(opts.stopTimeout)
	coord.Wait()
	if stopErr != nil {
		if errors.Is(stopErr, sim.ErrStopTimeout) {
			log.Warn(ctx, "tick loop did not stop in time; skipping final summary", logging.Err(stopErr))
			return nil
		}
		return stopErr
	}

	// The loop has exited, so the dispatcher can be used directly.
	final := context.Background()
	dispatcher.Execute(final, command.RefreshStats())
	if opts.view {
		dispatcher.Execute(final, command.RefreshView())
	}
	st := store.Snapshot().Stats()
	fmt.Fprintf(out, "Final: %d spaces, %d free, %d occupied (%.1f%%), %d active allocations after %d ticks\n",
		st.Total, st.Free, st.Occupied, st.OccupancyRate, st.ActiveAllocations, clock.Ticks())
	return nil
}
