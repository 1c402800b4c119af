package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/autoproducer/internal/pipeline"
)

// FileSink writes one summary file per run into Dir.
type FileSink struct {
	Dir    string
	Format Format
}

var _ pipeline.Sink = (*FileSink)(nil)

// NewFileSink creates the directory if needed.
func NewFileSink(dir string, format Format) (*FileSink, error) {
	if format == "" {
		format = FormatJSON
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &FileSink{Dir: dir, Format: format}, nil
}

// WriteRun writes the summary atomically through a temp file and rename.
func (s *FileSink) WriteRun(ctx context.Context, run pipeline.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	summary := NewSummary(run)
	data, err := summary.Encode(s.Format)
	if err != nil {
		return err
	}

	path := filepath.Join(s.Dir, summary.Name(s.Format))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}
