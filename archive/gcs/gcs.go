// Package gcs provides a Google Cloud Storage archive backend. It also
// works against emulators such as fake-gcs-server via a custom
// endpoint.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/xraph/steward"
	"github.com/xraph/steward/archive"
)

// Backend stores snapshot objects in one GCS bucket.
type Backend struct {
	client *storage.Client
	bucket string
}

var _ archive.Backend = (*Backend)(nil)

// Options configure the GCS backend.
type Options struct {
	// Endpoint overrides the storage endpoint, for emulators.
	// Authentication is disabled when set.
	Endpoint string
}

// New creates a GCS backend for the given bucket using application
// default credentials.
func New(ctx context.Context, bucket string, opts Options) (*Backend, error) {
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(opts.Endpoint),
			option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating client: %w", err)
	}
	return NewWithClient(client, bucket), nil
}

// NewWithClient creates a GCS backend over an existing client.
func NewWithClient(client *storage.Client, bucket string) *Backend {
	return &Backend{client: client, bucket: bucket}
}

// Put writes data to the object named by key.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs: writing %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: finalizing %q: %w", key, err)
	}
	return nil
}

// Get reads the object stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gcs: %w: %q", steward.ErrSnapshotNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs: opening %q: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs: reading %q: %w", key, err)
	}
	return data, nil
}

// List returns all keys under the given prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: listing %q: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Delete removes the object stored under key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	err := b.client.Bucket(b.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: %w: %q", steward.ErrSnapshotNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("gcs: deleting %q: %w", key, err)
	}
	return nil
}
