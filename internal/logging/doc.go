// Package logging is the structured logger shared by every daemon component.
//
// Records are JSON objects produced by log/slog. Child loggers add context
// that is repeated on every record they emit:
//
//	log := logger.WithRun(run.ID).WithAttempt(2).WithStage("script")
//	log.Warn("stage timed out", "timeout", d)
//
// Components running in the background tag themselves with WithComponent so
// monitor, watcher and scheduler output can be filtered apart.
//
// When a log directory is configured, output goes to autoproducer.log in that
// directory through a RotatingWriter; otherwise it goes to stderr.
package logging
