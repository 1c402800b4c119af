package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/pipeline"
	"github.com/Iron-Ham/autoproducer/internal/stage"
)

func sampleRun() pipeline.Run {
	start := time.Date(2026, time.March, 2, 0, 0, 5, 0, time.UTC)
	return pipeline.Run{
		ID:            "3f2a9c1e-7d41-4b8a-9f0e-2c5d6a7b8c9d",
		Trigger:       pipeline.TriggerScheduled,
		Reason:        "daily schedule 00:00",
		AttemptNumber: 2,
		FinalStatus:   pipeline.StateSucceeded,
		Outcome:       "succeeded on attempt 2",
		StartedAt:     start,
		EndedAt:       start.Add(90 * time.Second),
		StageResults: []stage.Result{
			{StageName: "ideas", Ordinal: 1, Attempt: 1, Status: stage.StatusTimeout, Elapsed: 30 * time.Second, ErrorDetail: "stage ideas timed out"},
			{StageName: "ideas", Ordinal: 1, Attempt: 2, Status: stage.StatusSuccess, Elapsed: 2 * time.Second},
			{StageName: "music", Ordinal: 5, Attempt: 2, Status: stage.StatusStubbed, Elapsed: time.Millisecond},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(sampleRun())
	if s.Status != "succeeded" || s.Attempts != 2 || s.Trigger != "scheduled" {
		t.Errorf("summary = %+v", s)
	}
	if s.DurationMS != 90000 {
		t.Errorf("duration = %d, want 90000", s.DurationMS)
	}
	if len(s.Stages) != 3 || s.Stages[0].Error != "stage ideas timed out" || s.Stages[2].Status != "stubbed" {
		t.Errorf("stages = %+v", s.Stages)
	}
	if got := s.Name(FormatYAML); got != "run-20260302-000005-3f2a9c1e.yaml" {
		t.Errorf("Name = %q", got)
	}
}

func TestFileSink_JSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	sink, err := NewFileSink(dir, FormatJSON)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := sink.WriteRun(context.Background(), sampleRun()); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run-20260302-000005-3f2a9c1e.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var got Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != sampleRun().ID || len(got.Stages) != 3 {
		t.Errorf("summary = %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the summary", len(entries))
	}
}

func TestFileSink_YAML(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, FormatYAML)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := sink.WriteRun(context.Background(), sampleRun()); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run-20260302-000005-3f2a9c1e.yaml"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var got map[string]any
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "succeeded" || got["attempts"] != 2 {
		t.Errorf("summary = %v", got)
	}
}

func TestFileSink_CanceledContext(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.WriteRun(ctx, sampleRun()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type fakePutter struct {
	bucket, key string
	body        []byte
	opts        minio.PutObjectOptions
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(body)) != size {
		return minio.UploadInfo{}, fmt.Errorf("size %d, read %d", size, len(body))
	}
	f.bucket, f.key, f.body, f.opts = bucket, key, body, opts
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func TestObjectSink_Upload(t *testing.T) {
	client := &fakePutter{}
	sink := newObjectSink(client, ObjectConfig{Bucket: "runs", Prefix: "autoproducer/daily"}, FormatJSON)

	if err := sink.WriteRun(context.Background(), sampleRun()); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if client.bucket != "runs" || client.key != "autoproducer/daily/run-20260302-000005-3f2a9c1e.json" {
		t.Errorf("uploaded to %s/%s", client.bucket, client.key)
	}
	if client.opts.ContentType != "application/json" {
		t.Errorf("content type = %q", client.opts.ContentType)
	}
	if !bytes.Contains(client.body, []byte(`"run_id": "3f2a9c1e`)) {
		t.Errorf("body = %s", client.body)
	}
}

func TestObjectSink_UploadError(t *testing.T) {
	sink := newObjectSink(&fakePutter{err: fmt.Errorf("access denied")}, ObjectConfig{Bucket: "runs"}, FormatYAML)
	err := sink.WriteRun(context.Background(), sampleRun())
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("err = %v, want upload error", err)
	}
}

func TestNewObjectSink_Validation(t *testing.T) {
	if _, err := NewObjectSink(ObjectConfig{Bucket: "runs"}, FormatJSON); err == nil {
		t.Error("accepted config without endpoint")
	}
	if _, err := NewObjectSink(ObjectConfig{Endpoint: "localhost:9000"}, FormatJSON); err == nil {
		t.Error("accepted config without bucket")
	}
	if _, err := NewObjectSink(ObjectConfig{Endpoint: "localhost:9000", Bucket: "runs"}, FormatJSON); err != nil {
		t.Errorf("NewObjectSink: %v", err)
	}
}

type sinkFunc func(ctx context.Context, run pipeline.Run) error

func (f sinkFunc) WriteRun(ctx context.Context, run pipeline.Run) error { return f(ctx, run) }

func TestMulti_WritesAllAndJoinsErrors(t *testing.T) {
	var calls int
	errA := fmt.Errorf("disk full")
	m := Multi{
		sinkFunc(func(context.Context, pipeline.Run) error { calls++; return errA }),
		sinkFunc(func(context.Context, pipeline.Run) error { calls++; return nil }),
	}

	err := m.WriteRun(context.Background(), sampleRun())
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want to wrap %v", err, errA)
	}
	if err := (Multi{}).WriteRun(context.Background(), sampleRun()); err != nil {
		t.Errorf("empty Multi err = %v", err)
	}
}
