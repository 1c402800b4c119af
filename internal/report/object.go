package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Iron-Ham/autoproducer/internal/pipeline"
)

// ObjectConfig locates an S3-compatible bucket.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Validate checks that the required fields are set.
func (c ObjectConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("object store endpoint is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}
	return nil
}

// putter is the subset of *minio.Client the sink uses.
type putter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectSink uploads one summary object per run.
type ObjectSink struct {
	client putter
	bucket string
	prefix string
	format Format
}

var _ pipeline.Sink = (*ObjectSink)(nil)

// NewObjectSink connects to the bucket described by cfg. No request is made
// until the first upload.
func NewObjectSink(cfg ObjectConfig, format Format) (*ObjectSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return newObjectSink(client, cfg, format), nil
}

func newObjectSink(client putter, cfg ObjectConfig, format Format) *ObjectSink {
	if format == "" {
		format = FormatJSON
	}
	return &ObjectSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, format: format}
}

// Key returns the object key a run's summary is stored under.
func (s *ObjectSink) Key(run pipeline.Run) string {
	return path.Join(s.prefix, NewSummary(run).Name(s.format))
}

// WriteRun uploads the run summary.
func (s *ObjectSink) WriteRun(ctx context.Context, run pipeline.Run) error {
	data, err := NewSummary(run).Encode(s.format)
	if err != nil {
		return err
	}
	key := s.Key(run)
	opts := minio.PutObjectOptions{ContentType: s.format.ContentType()}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload run summary %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
