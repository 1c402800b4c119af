package report

import (
	"context"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
)

// Multi writes every run to each sink in order. All sinks are attempted;
// their errors are joined.
type Multi []pipeline.Sink

// WriteRun implements pipeline.Sink.
func (m Multi) WriteRun(ctx context.Context, run pipeline.Run) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
