package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/autoproducer/internal/config"
	"github.com/Iron-Ham/autoproducer/internal/report"
	"github.com/Iron-Ham/autoproducer/internal/util"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics over past run summaries",
	Long: `Aggregate the run summaries written to report.dir.

Shows:
- Runs by final status
- Average attempts and duration per run
- Per-stage outcomes and average elapsed time`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var statsJSON bool

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir := config.ResolveDir(cfg.Report.Dir)
	out := cmd.OutOrStdout()
	if dir == "" {
		fmt.Fprintln(out, "report.dir is not set; no run summaries are kept.")
		return nil
	}

	summaries, err := report.ReadSummaries(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "No run summaries found in %s\n", dir)
			return nil
		}
		return err
	}
	st := report.Aggregate(summaries)

	if statsJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	printStatsText(out, st)
	return nil
}

func printStatsText(w io.Writer, st report.Stats) {
	fmt.Fprintln(w, titleStyle.Render("RUNS"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	if st.Runs == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No finished runs yet."))
		return
	}
	fmt.Fprintf(w, "Total:     %d\n", st.Runs)
	fmt.Fprintf(w, "Succeeded: %d (%.0f%%)\n", st.Succeeded, percent(st.Succeeded, st.Runs))
	fmt.Fprintf(w, "Failed:    %d\n", st.Failed)
	fmt.Fprintf(w, "Aborted:   %d\n", st.Aborted)
	fmt.Fprintf(w, "Attempts:  %.1f avg\n", st.AvgAttempts)
	fmt.Fprintf(w, "Duration:  %s avg\n", util.HumanDuration(msDuration(st.AvgDuration)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, titleStyle.Render("STAGES"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("%s %7s %7s %7s %7s %7s  %s",
		util.Column("STAGE", 12), "RUNS", "OK", "STUB", "TIMEOUT", "ERROR", "AVG")))
	for _, s := range st.Stages {
		fmt.Fprintf(w, "%s %7d %7d %7d %7d %7d  %s\n",
			util.Column(s.Stage, 12), s.Runs, s.Success, s.Stubbed, s.Timeout, s.Error,
			util.HumanDuration(msDuration(s.AverageMS)))
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
