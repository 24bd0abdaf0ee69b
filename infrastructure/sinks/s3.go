package sinks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.Destination = (*S3Destination)(nil)

// S3Config describes an S3-compatible object store destination.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" validate:"required"`
	AccessKey string `yaml:"access_key" validate:"required"`
	SecretKey string `yaml:"secret_key" validate:"required"`
	Bucket    string `yaml:"bucket" validate:"required"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// S3Destination writes output objects into an S3-compatible bucket.
// The hash partition segment of each path becomes part of the object
// key, spreading per-course tables across key prefixes.
type S3Destination struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Destination creates a destination backed by the configured
// bucket.
func NewS3Destination(config S3Config) (*S3Destination, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &S3Destination{
		client: client,
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

// Create returns a writer that buffers one course's table in memory
// and uploads it as a single object on Close. Upload failures surface
// from Close for the substrate's retry handling.
func (d *S3Destination) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	key := path
	if d.prefix != "" {
		key = d.prefix + "/" + path
	}
	return &s3Object{
		ctx:    ctx,
		client: d.client,
		bucket: d.bucket,
		key:    key,
	}, nil
}

type s3Object struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	key    string
	buf    bytes.Buffer
}

func (o *s3Object) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *s3Object) Close() error {
	_, err := o.client.PutObject(o.ctx, o.bucket, o.key,
		bytes.NewReader(o.buf.Bytes()), int64(o.buf.Len()),
		minio.PutObjectOptions{ContentType: "text/csv"},
	)
	if err != nil {
		return fmt.Errorf("upload %s: %w", o.key, err)
	}
	return nil
}
