// Package bun implements docstore.Store on PostgreSQL through the Bun
// ORM. It is an alternative to the pgx backend for deployments already
// standardized on Bun; both share the same table shape.
package bun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"

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

// Store implements docstore.Store backed by PostgreSQL via Bun.
// The caller owns the *bun.DB lifecycle; Close never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// New creates a Bun-backed document store.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// documentModel is the table shape, shared with the pgx backend.
type documentModel struct {
	bun.BaseModel `bun:"table:steward_documents"`

	Namespace string    `bun:"namespace,pk"`
	Name      string    `bun:"name,pk"`
	Data      []byte    `bun:"data,notnull,type:jsonb"`
	Version   int64     `bun:"version,notnull,default:1"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (m *documentModel) toDocument() (*docstore.Document, error) {
	doc := docstore.New(m.Name, m.Namespace)
	if err := json.Unmarshal(m.Data, &doc.Data); err != nil {
		return nil, err
	}
	doc.Version = strconv.FormatInt(m.Version, 10)
	return doc, nil
}

// Read fetches the document row.
func (s *Store) Read(ctx context.Context, name, namespace string) (*docstore.Document, error) {
	m := new(documentModel)
	err := s.db.NewSelect().Model(m).
		Where("namespace = ?", namespace).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bun: read %s/%s: %w", namespace, name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("bun: read %s/%s: %w", namespace, name, err)
	}

	doc, err := m.toDocument()
	if err != nil {
		return nil, fmt.Errorf("bun: decode %s/%s: %w", namespace, name, err)
	}
	return doc, nil
}

// Create inserts the document row; a duplicate key maps to
// ErrDocumentExists.
func (s *Store) Create(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("bun: encode %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	m := &documentModel{
		Namespace: doc.Namespace,
		Name:      doc.Name,
		Data:      raw,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("bun: create %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentExists)
		}
		return nil, fmt.Errorf("bun: create %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = "1"
	return out, nil
}

// Replace overwrites the document row regardless of its stored version.
func (s *Store) Replace(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("bun: encode %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	var version int64
	err = s.db.NewRaw(
		`UPDATE steward_documents
		 SET data = ?, version = version + 1, updated_at = NOW()
		 WHERE namespace = ? AND name = ?
		 RETURNING version`,
		raw, doc.Namespace, doc.Name,
	).Scan(ctx, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bun: replace %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("bun: replace %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = strconv.FormatInt(version, 10)
	return out, nil
}

// Migrate creates the documents table. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS steward_documents (
			namespace  TEXT        NOT NULL,
			name       TEXT        NOT NULL,
			data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
			version    BIGINT      NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("bun: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error { return nil }

// isDuplicateKey checks if a PostgreSQL error is a unique violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "SQLSTATE 23505") ||
		strings.Contains(err.Error(), "23505")
}
