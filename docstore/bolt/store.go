// Package bolt implements docstore.Store on a local BoltDB file. Each
// namespace is a bucket and each document is one JSON value under its
// name, so Read, Create and Replace are single-key bucket operations
// inside Bolt transactions.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/boltdb/bolt"

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

// Store implements docstore.Store backed by a BoltDB file.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// New opens (creating if necessary) the Bolt database at path.
func New(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// stored is the persisted document body. Identity lives in the
// bucket/key pair.
type stored struct {
	Data    map[string]string `json:"data"`
	Version int64             `json:"version"`
}

// Read fetches and decodes the document value.
func (s *Store) Read(_ context.Context, name, namespace string) (*docstore.Document, error) {
	var rec stored
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return steward.ErrDocumentNotFound
		}
		raw := b.Get([]byte(name))
		if raw == nil {
			return steward.ErrDocumentNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: read %s/%s: %w", namespace, name, err)
	}

	doc := docstore.New(name, namespace)
	for k, v := range rec.Data {
		doc.Data[k] = v
	}
	doc.Version = strconv.FormatInt(rec.Version, 10)
	return doc, nil
}

// Create stores the document only when its key does not exist yet.
func (s *Store) Create(_ context.Context, doc *docstore.Document) (*docstore.Document, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(doc.Namespace))
		if err != nil {
			return err
		}
		if b.Get([]byte(doc.Name)) != nil {
			return steward.ErrDocumentExists
		}
		raw, err := json.Marshal(stored{Data: doc.Data, Version: 1})
		if err != nil {
			return err
		}
		return b.Put([]byte(doc.Name), raw)
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: create %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = "1"
	return out, nil
}

// Replace overwrites the document only when its key already exists,
// advancing the version counter.
func (s *Store) Replace(_ context.Context, doc *docstore.Document) (*docstore.Document, error) {
	var version int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(doc.Namespace))
		if b == nil {
			return steward.ErrDocumentNotFound
		}
		raw := b.Get([]byte(doc.Name))
		if raw == nil {
			return steward.ErrDocumentNotFound
		}
		var prev stored
		if err := json.Unmarshal(raw, &prev); err != nil {
			return err
		}
		version = prev.Version + 1
		next, err := json.Marshal(stored{Data: doc.Data, Version: version})
		if err != nil {
			return err
		}
		return b.Put([]byte(doc.Name), next)
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: replace %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = strconv.FormatInt(version, 10)
	return out, nil
}

// Migrate is a no-op: buckets are created on first write.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the database file is usable.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
