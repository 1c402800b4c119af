package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

// ReadSummaries decodes every run summary in dir, oldest first. Files that
// are not summaries are skipped.
func ReadSummaries(dir string) ([]Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read report directory: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "run-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read run summary: %w", err)
		}

		var s Summary
		switch filepath.Ext(name) {
		case ".json":
			err = json.Unmarshal(data, &s)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &s)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// StageStats aggregates one stage's results across runs.
type StageStats struct {
	Stage     string  `json:"stage"`
	Runs      int     `json:"runs"`
	Success   int     `json:"success"`
	Stubbed   int     `json:"stubbed"`
	Timeout   int     `json:"timeout"`
	Error     int     `json:"error"`
	AverageMS float64 `json:"average_ms"`
}

// Stats aggregates run summaries.
type Stats struct {
	Runs        int          `json:"runs"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Aborted     int          `json:"aborted"`
	AvgAttempts float64      `json:"average_attempts"`
	AvgDuration float64      `json:"average_duration_ms"`
	Stages      []StageStats `json:"stages"`
}

// Aggregate computes Stats over summaries. Stages are listed in the order
// they first appear.
func Aggregate(summaries []Summary) Stats {
	var st Stats
	var attempts, durationMS int64
	index := make(map[string]int)
	totals := make(map[string]int64)

	for _, s := range summaries {
		st.Runs++
		switch s.Status {
		case string(pipeline.StateSucceeded):
			st.Succeeded++
		case string(pipeline.StateFailed):
			st.Failed++
		case string(pipeline.StateAborted):
			st.Aborted++
		}
		attempts += int64(s.Attempts)
		durationMS += s.DurationMS

		for _, r := range s.Stages {
			i, ok := index[r.Stage]
			if !ok {
				i = len(st.Stages)
				index[r.Stage] = i
				st.Stages = append(st.Stages, StageStats{Stage: r.Stage})
			}
			ss := &st.Stages[i]
			ss.Runs++
			switch r.Status {
			case string(stage.StatusSuccess):
				ss.Success++
			case string(stage.StatusStubbed):
				ss.Stubbed++
			case string(stage.StatusTimeout):
				ss.Timeout++
			case string(stage.StatusError):
				ss.Error++
			}
			totals[r.Stage] += r.ElapsedMS
		}
	}

	if st.Runs > 0 {
		st.AvgAttempts = float64(attempts) / float64(st.Runs)
		st.AvgDuration = float64(durationMS) / float64(st.Runs)
	}
	for i := range st.Stages {
		ss := &st.Stages[i]
		ss.AverageMS = float64(totals[ss.Stage]) / float64(ss.Runs)
	}
	return st
}
