package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/control"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/util"
)

const (
	stageColumn  = 12
	statusColumn = 9
	timeColumn   = 8
)

// renderRun prints one run with its stage results, grouped by attempt.
func renderRun(w io.Writer, run pipeline.Run, width int) {
	status := run.FinalStatus
	if status == "" {
		status = pipeline.StateRunning
	}
	fmt.Fprintf(w, "%s %s  %s\n",
		titleStyle.Render("Run"),
		util.ShortID(run.ID),
		stateStyle(status).Render(string(status)),
	)
	fmt.Fprintf(w, "  %s %s", labelStyle.Render("trigger:"), run.Trigger)
	if run.Reason != "" {
		fmt.Fprintf(w, " (%s)", util.TruncateANSI(run.Reason, width/2))
	}
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("elapsed:"), util.HumanDuration(run.Duration()))
	if run.Outcome != "" {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("outcome:"), run.Outcome)
	}

	for i, results := range run.Attempts() {
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s\n", labelStyle.Render(fmt.Sprintf("attempt %d", i+1)))
		for _, r := range results {
			line := "    " +
				util.Column(r.StageName, stageColumn) + " " +
				stageStatusStyle(r.Status).Render(util.Column(string(r.Status), statusColumn)) + " " +
				util.Column(util.HumanDuration(r.Elapsed), timeColumn)
			if r.ErrorDetail != "" {
				line += " " + mutedStyle.Render(util.FirstLine(r.ErrorDetail))
			}
			fmt.Fprintln(w, util.TruncateANSI(line, width))
		}
	}
}

// renderStatus prints the daemon status.
func renderStatus(w io.Writer, st *control.StatusResponse, width int, now time.Time) {
	snap := st.Pipeline
	fmt.Fprintf(w, "%s  %s\n", titleStyle.Render("autoproducer"), stateStyle(snap.State).Render(string(snap.State)))

	if snap.PendingRestart {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render("restart pending"))
	}
	if st.NextFire != nil {
		fmt.Fprintf(w, "  %s %s (in %s)\n",
			labelStyle.Render("next run:"),
			st.NextFire.Local().Format("2006-01-02 15:04"),
			util.HumanDuration(st.NextFire.Sub(now).Truncate(time.Second)),
		)
	}
	if n := len(st.Resources); n > 0 {
		last := st.Resources[n-1]
		line := fmt.Sprintf("cpu %.1f%%  ram %.1f%%", last.CPUPct, last.RAMPct)
		if st.ResourcePaused {
			line += "  " + stateStyle(pipeline.StatePaused).Render("paused")
		}
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("resources:"), line)
	}
	if snap.Abandoned > 0 {
		fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("abandoned workers:"), snap.Abandoned)
	}

	if snap.Active != nil {
		fmt.Fprintln(w)
		renderRun(w, *snap.Active, width)
	}
	if snap.Last != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s %s in %s",
			labelStyle.Render("last run:"),
			util.ShortID(snap.Last.ID),
			stateStyle(snap.Last.FinalStatus).Render(string(snap.Last.FinalStatus)),
			util.HumanDuration(snap.Last.Duration()),
		)
		if snap.Last.Outcome != "" {
			fmt.Fprintf(w, ", %s", snap.Last.Outcome)
		}
		fmt.Fprintln(w)
	}
}

// renderHistory prints one line per run, newest first.
func renderHistory(w io.Writer, runs []pipeline.Run, width int) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no finished runs"))
		return
	}
	header := util.Column("RUN", 9) + " " + util.Column("STARTED", 17) + " " +
		util.Column("TRIGGER", 10) + " " + util.Column("STATUS", 10) + " " +
		util.Column("TRIES", 5) + " " + util.Column("TIME", timeColumn) + " OUTCOME"
	fmt.Fprintln(w, labelStyle.Render(util.TruncateANSI(header, width)))

	for _, r := range runs {
		line := util.Column(util.ShortID(r.ID), 9) + " " +
			util.Column(r.StartedAt.Local().Format("2006-01-02 15:04"), 17) + " " +
			util.Column(string(r.Trigger), 10) + " " +
			stateStyle(r.FinalStatus).Render(util.Column(string(r.FinalStatus), 10)) + " " +
			util.Column(fmt.Sprint(r.AttemptNumber), 5) + " " +
			util.Column(util.HumanDuration(r.Duration()), timeColumn) + " " +
			strings.TrimSpace(r.Outcome)
		fmt.Fprintln(w, util.TruncateANSI(line, width))
	}
}
