// Package redis implements docstore.Store using Redis. Each document is
// stored as one JSON string value, so Read, Create and Replace map to GET,
// SET NX and SET XX on a single key.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	docs := redisstore.New(client)
//	if err := docs.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/steward"
	"github.com/xraph/steward/docstore"
)

// Compile-time interface check.
var _ docstore.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements docstore.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed document store. The caller owns the
// Redis client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// payload is the stored document body. Identity lives in the key.
type payload struct {
	Data map[string]string `json:"data"`
}

// Read fetches and decodes the document value.
func (s *Store) Read(ctx context.Context, name, namespace string) (*docstore.Document, error) {
	raw, err := s.client.Get(ctx, docKey(name, namespace)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: read %s/%s: %w", namespace, name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("redis: read %s/%s: %w", namespace, name, err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("redis: decode %s/%s: %w", namespace, name, err)
	}
	doc := docstore.New(name, namespace)
	for k, v := range p.Data {
		doc.Data[k] = v
	}
	return doc, nil
}

// Create stores the document only if its key does not exist yet (SET NX).
func (s *Store) Create(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	raw, err := json.Marshal(payload{Data: doc.Data})
	if err != nil {
		return nil, fmt.Errorf("redis: encode %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	ok, err := s.client.SetNX(ctx, docKey(doc.Name, doc.Namespace), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: create %s/%s: %w", doc.Namespace, doc.Name, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: create %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentExists)
	}
	return doc.Clone(), nil
}

// Replace overwrites the document only if its key already exists (SET XX).
func (s *Store) Replace(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	raw, err := json.Marshal(payload{Data: doc.Data})
	if err != nil {
		return nil, fmt.Errorf("redis: encode %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	ok, err := s.client.SetXX(ctx, docKey(doc.Name, doc.Namespace), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: replace %s/%s: %w", doc.Namespace, doc.Name, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: replace %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentNotFound)
	}
	return doc.Clone(), nil
}

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
