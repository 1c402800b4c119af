package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
)

// Format is a summary encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q: %w", s, errors.ErrInvalidInput)
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// StageSummary is one stage result as written to the artifact.
type StageSummary struct {
	Stage     string `json:"stage" yaml:"stage"`
	Attempt   int    `json:"attempt" yaml:"attempt"`
	Status    string `json:"status" yaml:"status"`
	ElapsedMS int64  `json:"elapsed_ms" yaml:"elapsed_ms"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary is the artifact document for one run.
type Summary struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Trigger    string         `json:"trigger" yaml:"trigger"`
	Reason     string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Status     string         `json:"status" yaml:"status"`
	Attempts   int            `json:"attempts" yaml:"attempts"`
	Outcome    string         `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	EndedAt    time.Time      `json:"ended_at" yaml:"ended_at"`
	DurationMS int64          `json:"duration_ms" yaml:"duration_ms"`
	Stages     []StageSummary `json:"stages" yaml:"stages"`
}

// NewSummary builds the artifact document for run.
func NewSummary(run pipeline.Run) Summary {
	s := Summary{
		RunID:      run.ID,
		Trigger:    string(run.Trigger),
		Reason:     run.Reason,
		Status:     run.FinalStatus.String(),
		Attempts:   run.AttemptNumber,
		Outcome:    run.Outcome,
		StartedAt:  run.StartedAt.UTC(),
		EndedAt:    run.EndedAt.UTC(),
		DurationMS: run.Duration().Milliseconds(),
		Stages:     make([]StageSummary, 0, len(run.StageResults)),
	}
	for _, r := range run.StageResults {
		s.Stages = append(s.Stages, StageSummary{
			Stage:     r.StageName,
			Attempt:   r.Attempt,
			Status:    string(r.Status),
			ElapsedMS: r.Elapsed.Milliseconds(),
			Error:     r.ErrorDetail,
		})
	}
	return s
}

// Encode renders the summary in format f.
func (s Summary) Encode(f Format) ([]byte, error) {
	if f == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return nil, fmt.Errorf("encode summary: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode summary: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return append(data, '\n'), nil
}

// Name returns the artifact name for the summary, sortable by start time.
func (s Summary) Name(f Format) string {
	id := s.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("run-%s-%s%s", s.StartedAt.Format("20060102-150405"), id, f.Ext())
}
