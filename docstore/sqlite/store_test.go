package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xraph/steward"
	"github.com/xraph/steward/docstore"
)

// newTestStore opens a migrated store over a temp database file.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "steward.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func makeDoc(entries map[string]string) *docstore.Document {
	doc := docstore.New("job-states", "default")
	for k, v := range entries {
		doc.Data[k] = v
	}
	return doc
}

func TestReadNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Read(context.Background(), "job-states", "default")
	if !errors.Is(err, steward.ErrDocumentNotFound) {
		t.Fatalf("Read on empty db: err = %v, want ErrDocumentNotFound", err)
	}
}

func TestCreateReadReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, makeDoc(map[string]string{"a": "1"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Version != "1" {
		t.Errorf("Version = %q, want %q", created.Version, "1")
	}

	if _, err = s.Create(ctx, makeDoc(nil)); !errors.Is(err, steward.ErrDocumentExists) {
		t.Fatalf("duplicate Create: err = %v, want ErrDocumentExists", err)
	}

	replaced, err := s.Replace(ctx, makeDoc(map[string]string{"b": "2"}))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if replaced.Version != "2" {
		t.Errorf("Version after Replace = %q, want %q", replaced.Version, "2")
	}

	got, err := s.Read(ctx, "job-states", "default")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := got.Data["a"]; ok {
		t.Error("Data[a] survived a whole-document replace")
	}
	if got.Data["b"] != "2" {
		t.Errorf("Data[b] = %q, want %q", got.Data["b"], "2")
	}
}

func TestReplaceMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Replace(context.Background(), makeDoc(nil))
	if !errors.Is(err, steward.ErrDocumentNotFound) {
		t.Fatalf("Replace on missing document: err = %v, want ErrDocumentNotFound", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}
