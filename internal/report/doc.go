// Package report writes a summary artifact for every finished pipeline run.
//
// A [FileSink] writes one JSON or YAML file per run to a local directory; an
// [ObjectSink] uploads the same document to an S3-compatible bucket. [Multi]
// fans a run out to several sinks.
package report
