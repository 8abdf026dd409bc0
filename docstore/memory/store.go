// Package memory provides a fully in-memory docstore.Store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/xraph/steward"
	"github.com/xraph/steward/docstore"
)

// Ensure Store implements docstore.Store at compile time.
var _ docstore.Store = (*Store)(nil)

// Store keeps documents in a map keyed by "namespace/name". Reads and
// writes always copy, so callers never share memory with the store.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*docstore.Document
	serial uint64
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		docs: make(map[string]*docstore.Document),
	}
}

func key(name, namespace string) string {
	return namespace + "/" + name
}

// Read fetches a copy of the stored document.
func (m *Store) Read(_ context.Context, name, namespace string) (*docstore.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, steward.ErrStoreClosed
	}
	doc, ok := m.docs[key(name, namespace)]
	if !ok {
		return nil, fmt.Errorf("memory: read %s/%s: %w", namespace, name, steward.ErrDocumentNotFound)
	}
	return doc.Clone(), nil
}

// Create stores a copy of the document.
func (m *Store) Create(_ context.Context, doc *docstore.Document) (*docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, steward.ErrStoreClosed
	}
	k := key(doc.Name, doc.Namespace)
	if _, exists := m.docs[k]; exists {
		return nil, fmt.Errorf("memory: create %s: %w", k, steward.ErrDocumentExists)
	}

	cp := doc.Clone()
	m.serial++
	cp.Version = strconv.FormatUint(m.serial, 10)
	m.docs[k] = cp
	return cp.Clone(), nil
}

// Replace overwrites the stored document with a copy of doc.
func (m *Store) Replace(_ context.Context, doc *docstore.Document) (*docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, steward.ErrStoreClosed
	}
	k := key(doc.Name, doc.Namespace)
	if _, exists := m.docs[k]; !exists {
		return nil, fmt.Errorf("memory: replace %s: %w", k, steward.ErrDocumentNotFound)
	}

	cp := doc.Clone()
	m.serial++
	cp.Version = strconv.FormatUint(m.serial, 10)
	m.docs[k] = cp
	return cp.Clone(), nil
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close marks the store closed; subsequent operations fail.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
