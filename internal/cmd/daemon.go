package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/config"
	"github.com/Iron-Ham/autoproducer/internal/control"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/logging"
	"github.com/Iron-Ham/autoproducer/internal/observability"
	"github.com/Iron-Ham/autoproducer/internal/resource"
	"github.com/Iron-Ham/autoproducer/internal/scheduler"
	"github.com/Iron-Ham/autoproducer/internal/watcher"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 5 * time.Second

var daemonDebug bool

var startSchedulerCmd = &cobra.Command{
	Use:   "start-scheduler",
	Short: "Start the pipeline daemon",
	Long: `Start the daemon in the foreground. It fires one pipeline run a day at
scheduler.daily_at, pauses runs while the host is under resource pressure,
restarts the active run when watched files change and serves the control API
on control.addr.

Stop it with Ctrl+C, SIGTERM or 'autoproducer stop-scheduler'.`,
	Args: cobra.NoArgs,
	RunE: runStartScheduler,
}

func init() {
	startSchedulerCmd.Flags().BoolVar(&daemonDebug, "debug", false, "fire a run immediately on start")
	rootCmd.AddCommand(startSchedulerCmd)
}

func runStartScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if daemonDebug {
		cfg.Scheduler.Debug = true
	}
	logger := createLogger(cfg)
	defer func() { _ = logger.Close() }()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var metricsHandler http.Handler
	if cfg.Observability.Metrics {
		handler, shutdownMetrics, err := observability.InitMetrics()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		metricsHandler = handler
		defer shutdownWithTimeout(logger, "metrics", shutdownMetrics)
	}
	shutdownTracer, err := observability.InitTracer(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownWithTimeout(logger, "tracer", shutdownTracer)
	}

	bus := event.NewBus(event.WithLogger(logger))
	instruments, err := observability.Register(bus, otel.Meter(observability.MeterName))
	if err != nil {
		return fmt.Errorf("failed to register instruments: %w", err)
	}
	defer instruments.Close()

	orch, err := newPipeline(cfg, bus, logger)
	if err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = orch.Stop() }()

	sched, err := scheduler.New(scheduler.Config{
		DailyAt:       cfg.Scheduler.DailyAt,
		CheckInterval: cfg.Scheduler.CheckInterval(),
		Debug:         cfg.Scheduler.Debug,
		Channels:      channelBriefs(cfg),
	}, orch, scheduler.WithLogger(logger), scheduler.WithBus(bus))
	if err != nil {
		return err
	}

	serverOpts := []control.Option{
		control.WithScheduler(sched),
		control.WithShutdown(cancel),
		control.WithLogger(logger),
	}
	if metricsHandler != nil {
		serverOpts = append(serverOpts, control.WithMetrics(metricsHandler))
	}

	var wg conc.WaitGroup

	if cfg.Resources.Enabled {
		policy := resource.NewPolicy(
			resource.WithCPUThreshold(cfg.Resources.CPUThreshold),
			resource.WithRAMThreshold(cfg.Resources.RAMThreshold),
			resource.WithCooldownPeriod(cfg.Resources.Cooldown()),
		)
		monitor := resource.NewMonitor(resource.NewSystemSampler(), orch, policy,
			resource.WithBus(bus),
			resource.WithLogger(logger),
			resource.WithSampleInterval(cfg.Resources.SampleInterval()),
		)
		serverOpts = append(serverOpts, control.WithResources(monitor))
		wg.Go(func() { monitor.Start(ctx) })
	}

	if cfg.Watcher.Enabled {
		roots := make([]string, 0, len(cfg.Watcher.Roots))
		for _, r := range cfg.Watcher.Roots {
			roots = append(roots, config.ResolveDir(r))
		}
		w, err := watcher.New(watcher.Config{
			Roots:        roots,
			Patterns:     cfg.Watcher.Patterns,
			Ignore:       cfg.Watcher.Ignore,
			Debounce:     cfg.Watcher.Debounce(),
			RestartEvery: cfg.Watcher.RestartEvery(),
		}, orch, watcher.WithLogger(logger), watcher.WithBus(bus))
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		if err := w.Start(ctx); err != nil {
			logger.Warn("change watcher unavailable, continuing without it", "error", err)
		} else {
			defer w.Stop()
		}
	}

	server := control.NewServer(cfg.Control.Addr, orch, serverOpts...)
	serverErr := make(chan error, 1)
	wg.Go(func() {
		if err := server.Run(ctx); err != nil {
			serverErr <- err
			cancel()
		}
	})
	wg.Go(func() { sched.Start(ctx) })

	fmt.Fprintf(cmd.OutOrStdout(), "autoproducer daemon running, control API on %s, next run %s\n",
		cfg.Control.Addr, sched.NextFire().Format("2006-01-02 15:04"))
	logger.Info("daemon started", "addr", cfg.Control.Addr, "daily_at", cfg.Scheduler.DailyAt, "channels", sched.Channels())

	<-ctx.Done()
	logger.Info("daemon stopping")
	wg.Wait()
	_ = orch.Stop()

	select {
	case err := <-serverErr:
		return fmt.Errorf("control API: %w", err)
	default:
	}
	fmt.Fprintln(cmd.OutOrStdout(), "autoproducer daemon stopped")
	return nil
}

func shutdownWithTimeout(logger *logging.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("shutdown failed", "component", name, "error", err)
	}
}
