// Package watcher requests a pipeline restart when source files change.
//
// A [Watcher] watches its roots recursively, keeps only Write and Create
// events on paths matching its glob patterns, and debounces them into
// batches. A batch that arrives while a run is active becomes one
// RequestRestart call, subject to a rate limit.
//
// If the platform's notification backend is unavailable the watcher logs
// once and does nothing; the pipeline runs without change-triggered restarts.
package watcher
