package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/config"
	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/event"
	"github.com/Iron-Ham/autoproducer/internal/observability"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/spf13/cobra"
)

var runOnceReason string

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run the pipeline once in this process",
	Long: `Run every stage once with the configured retry policy, print the result
and exit. The exit status is non-zero unless the run succeeded.

No daemon is needed; the scheduler, resource monitor and change watcher are
not started.`,
	Args: cobra.NoArgs,
	RunE: runRunOnce,
}

func init() {
	runOnceCmd.Flags().StringVar(&runOnceReason, "reason", "run-once", "reason recorded on the run")
	rootCmd.AddCommand(runOnceCmd)
}

func runRunOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := createLogger(cfg)
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(shutdownCtx)
		}()
	}

	orch, err := newPipeline(cfg, event.NewBus(), logger)
	if err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = orch.Stop() }()

	run, err := orch.RunOnce(ctx, pipeline.TriggerManual, runOnceReason)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted")
		}
		return err
	}
	if run == nil {
		return fmt.Errorf("run finished without a result")
	}

	renderRun(cmd.OutOrStdout(), *run, terminalWidth())
	if run.FinalStatus != pipeline.StateSucceeded {
		return fmt.Errorf("run %s %s: %s", run.ID, run.FinalStatus, errors.UserMessage(run.Err))
	}
	return nil
}
