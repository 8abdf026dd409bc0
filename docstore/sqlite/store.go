// Package sqlite implements docstore.Store on a local SQLite database.
// Useful for single-node deployments and development where no remote
// backend is available. Documents live in one table keyed by
// (namespace, name) with the data mapping stored as a JSON column.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // register the sqlite driver

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

// Store implements docstore.Store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if necessary) the SQLite database at path.
// Use ":memory:" for an in-memory database. The connection is limited
// to one writer, which SQLite requires anyway.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Migrate creates the documents table and sets pragmas. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS steward_documents (
		namespace  TEXT    NOT NULL,
		name       TEXT    NOT NULL,
		data       TEXT    NOT NULL DEFAULT '{}',
		version    INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, name)
	);`)
	if err != nil {
		return fmt.Errorf("sqlite: create documents table: %w", err)
	}
	return nil
}

// Read fetches the document row and decodes its data column.
func (s *Store) Read(ctx context.Context, name, namespace string) (*docstore.Document, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, version FROM steward_documents WHERE namespace = ? AND name = ?`,
		namespace, name,
	).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlite: read %s/%s: %w", namespace, name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("sqlite: read %s/%s: %w", namespace, name, err)
	}

	doc := docstore.New(name, namespace)
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return nil, fmt.Errorf("sqlite: decode %s/%s: %w", namespace, name, err)
	}
	doc.Version = strconv.FormatInt(version, 10)
	return doc, nil
}

// Create inserts the document row; a primary-key violation maps to
// ErrDocumentExists.
func (s *Store) Create(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO steward_documents (namespace, name, data) VALUES (?, ?, ?)`,
		doc.Namespace, doc.Name, raw,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sqlite: create %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentExists)
		}
		return nil, fmt.Errorf("sqlite: create %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = "1"
	return out, nil
}

// Replace overwrites the document row regardless of its stored version.
func (s *Store) Replace(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE steward_documents
		 SET data = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE namespace = ? AND name = ?`,
		raw, doc.Namespace, doc.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: replace %s/%s: %w", doc.Namespace, doc.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: replace %s/%s: %w", doc.Namespace, doc.Name, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("sqlite: replace %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentNotFound)
	}

	var version int64
	err = s.db.QueryRowContext(ctx,
		`SELECT version FROM steward_documents WHERE namespace = ? AND name = ?`,
		doc.Namespace, doc.Name,
	).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("sqlite: replace %s/%s: %w", doc.Namespace, doc.Name, err)
	}

	out := doc.Clone()
	out.Version = strconv.FormatInt(version, 10)
	return out, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation checks if a SQLite error is a unique constraint
// violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
