// Package s3 provides an Amazon S3 archive backend. It also works
// against S3-compatible stores such as MinIO via a custom endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/xraph/steward"
	"github.com/xraph/steward/archive"
)

// Backend stores snapshot objects in one S3 bucket.
type Backend struct {
	client *s3.Client
	bucket string
}

var _ archive.Backend = (*Backend)(nil)

// Options configure the S3 backend.
type Options struct {
	// Region is the AWS region the bucket lives in.
	Region string
	// Endpoint overrides the S3 endpoint, for MinIO and other
	// S3-compatible stores. Path-style addressing is enabled when set.
	Endpoint string
}

// New creates an S3 backend for the given bucket using the default AWS
// credential chain.
func New(ctx context.Context, bucket string, opts Options) (*Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, bucket), nil
}

// NewWithClient creates an S3 backend over an existing client.
func NewWithClient(client *s3.Client, bucket string) *Backend {
	return &Backend{client: client, bucket: bucket}
}

// Put writes data to the object named by key.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3: putting %q: %w", key, err)
	}
	return nil
}

// Get reads the object stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("s3: %w: %q", steward.ErrSnapshotNotFound, key)
		}
		return nil, fmt.Errorf("s3: getting %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: reading %q: %w", key, err)
	}
	return data, nil
}

// List returns all keys under the given prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: listing %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Delete removes the object stored under key. S3 deletes are idempotent
// so a missing key is not an error here; the Snapshotter only deletes
// keys it just listed.
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: deleting %q: %w", key, err)
	}
	return nil
}
