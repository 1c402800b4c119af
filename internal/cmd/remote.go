package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/control"
	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const remoteTimeout = 10 * time.Second

var (
	remoteReason   string
	historyLimit   int
	triggerChannel string
)

var stopSchedulerCmd = &cobra.Command{
	Use:   "stop-scheduler",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			if err := c.Shutdown(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested")
			return nil
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active run before its next stage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			if err := c.Pause(ctx, remoteReason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Pause requested")
			return nil
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused pipeline",
	Long: `Resume a paused pipeline. With pipeline.resume_policy "restart" the
paused run is abandoned and a fresh run starts; with "continue" the run
carries on with its next stage.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			if err := c.Resume(ctx, remoteReason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Resume requested")
			return nil
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Abort the active run and start a new one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			if err := c.Restart(ctx, remoteReason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Restart requested")
			return nil
		})
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start a run now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			runID, err := c.TriggerChannel(ctx, triggerChannel, remoteReason)
			if errors.Is(err, errors.ErrRunActive) {
				return fmt.Errorf("%s", errors.UserMessage(err))
			}
			var apiErr *control.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
				return fmt.Errorf("%s", apiErr.Message)
			}
			if err != nil {
				return err
			}
			if triggerChannel != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Started run %s for channel %s\n", runID, triggerChannel)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started run %s\n", runID)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			runs, err := c.History(ctx, historyLimit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), runs, terminalWidth())
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{pauseCmd, resumeCmd, restartCmd, triggerCmd} {
		c.Flags().StringVar(&remoteReason, "reason", "", "reason recorded with the request")
	}
	triggerCmd.Flags().StringVar(&triggerChannel, "channel", "", "production preset from pipeline.channels")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")

	rootCmd.AddCommand(stopSchedulerCmd, pauseCmd, resumeCmd, restartCmd, triggerCmd, historyCmd)
}

// withClient calls fn with a client for the configured daemon address.
func withClient(cmd *cobra.Command, fn func(context.Context, *control.Client) error) error {
	addr := viper.GetString("control.addr")
	if addr == "" {
		addr = control.DefaultAddr
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()

	err := fn(ctx, control.NewClient(addr))
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("daemon not reachable at %s (is 'autoproducer start-scheduler' running?): %w", addr, err)
	}
	return err
}
