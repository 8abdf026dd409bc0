// Package mongo implements docstore.Store on MongoDB. Documents live in
// one collection keyed by (namespace, name), with the data mapping
// stored as an embedded object and a version counter bumped on every
// replace.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/steward"
	"github.com/xraph/steward/docstore"
)

// Compile-time interface check.
var _ docstore.Store = (*Store)(nil)

const collectionName = "steward_documents"

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(s *Store) { s.col = s.db.Collection(name) }
}

// Store implements docstore.Store backed by a MongoDB collection.
// The caller owns the client lifecycle; Close never disconnects it.
type Store struct {
	db     *mongod.Database
	col    *mongod.Collection
	logger *slog.Logger
}

// New creates a MongoDB-backed document store on the given database.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		col:    db.Collection(collectionName),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// record is the stored document shape.
type record struct {
	Namespace string            `bson:"namespace"`
	Name      string            `bson:"name"`
	Data      map[string]string `bson:"data"`
	Version   int64             `bson:"version"`
}

func filterFor(name, namespace string) bson.D {
	return bson.D{
		{Key: "namespace", Value: namespace},
		{Key: "name", Value: name},
	}
}

// Read fetches the document record.
func (s *Store) Read(ctx context.Context, name, namespace string) (*docstore.Document, error) {
	var rec record
	err := s.col.FindOne(ctx, filterFor(name, namespace)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, fmt.Errorf("mongo: read %s/%s: %w", namespace, name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("mongo: read %s/%s: %w", namespace, name, err)
	}

	doc := docstore.New(name, namespace)
	for k, v := range rec.Data {
		doc.Data[k] = v
	}
	doc.Version = strconv.FormatInt(rec.Version, 10)
	return doc, nil
}

// Create inserts the document record; a duplicate key on the unique
// (namespace, name) index maps to ErrDocumentExists.
func (s *Store) Create(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	rec := record{
		Namespace: doc.Namespace,
		Name:      doc.Name,
		Data:      doc.Data,
		Version:   1,
	}
	if _, err := s.col.InsertOne(ctx, rec); err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("mongo: create %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentExists)
		}
		return nil, fmt.Errorf("mongo: create %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = "1"
	return out, nil
}

// Replace overwrites the stored data and bumps the version counter.
func (s *Store) Replace(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "data", Value: doc.Data}}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: int64(1)}}},
	}

	var rec record
	err := s.col.FindOneAndUpdate(ctx, filterFor(doc.Name, doc.Namespace), update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, fmt.Errorf("mongo: replace %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("mongo: replace %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = strconv.FormatInt(rec.Version, 10)
	return out, nil
}

// Migrate creates the unique (namespace, name) index.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongod.IndexModel{
		Keys: bson.D{
			{Key: "namespace", Value: 1},
			{Key: "name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op. The caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return mongod.IsDuplicateKeyError(err) ||
		strings.Contains(err.Error(), "E11000")
}
