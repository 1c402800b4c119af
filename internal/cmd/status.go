package cmd

import (
	"context"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/control"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's pipeline status",
	Long: `Display the pipeline state, the active run with its stage results, the
next scheduled run and the latest resource readings of the running daemon.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *control.Client) error {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		renderStatus(cmd.OutOrStdout(), st, terminalWidth(), time.Now())
		return nil
	})
}
