package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/steward"
	"github.com/xraph/steward/docstore"
)

func newDoc(entries map[string]string) *docstore.Document {
	doc := docstore.New("job-states", "default")
	for k, v := range entries {
		doc.Data[k] = v
	}
	return doc
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := s.Read(ctx, "job-states", "default"); !errors.Is(err, steward.ErrStoreClosed) {
		t.Errorf("Read after Close: err = %v, want ErrStoreClosed", err)
	}
}

func TestCreateReadReplace(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if _, err := s.Read(ctx, "job-states", "default"); !errors.Is(err, steward.ErrDocumentNotFound) {
		t.Fatalf("Read before Create: err = %v, want ErrDocumentNotFound", err)
	}

	created, err := s.Create(ctx, newDoc(map[string]string{"a": "1"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Version == "" {
		t.Error("Create should assign a version")
	}

	if _, err = s.Create(ctx, newDoc(nil)); !errors.Is(err, steward.ErrDocumentExists) {
		t.Fatalf("duplicate Create: err = %v, want ErrDocumentExists", err)
	}

	replaced, err := s.Replace(ctx, newDoc(map[string]string{"b": "2"}))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if replaced.Version == created.Version {
		t.Error("Replace should advance the version")
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
	t.Parallel()
	s := New()

	_, err := s.Replace(context.Background(), newDoc(nil))
	if !errors.Is(err, steward.ErrDocumentNotFound) {
		t.Fatalf("Replace on missing document: err = %v, want ErrDocumentNotFound", err)
	}
}

func TestCopySemantics(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	in := newDoc(map[string]string{"a": "1"})
	if _, err := s.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutating the caller's document after Create must not affect the store.
	in.Data["a"] = "mutated"

	got, err := s.Read(ctx, "job-states", "default")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Data["a"] != "1" {
		t.Errorf("Data[a] = %q, want %q", got.Data["a"], "1")
	}

	// Mutating a read result must not affect the store either.
	got.Data["a"] = "mutated"
	again, err := s.Read(ctx, "job-states", "default")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if again.Data["a"] != "1" {
		t.Errorf("Data[a] = %q after read mutation, want %q", again.Data["a"], "1")
	}
}

func TestNamespaceIsolation(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := docstore.New("job-states", "team-a")
	a.Data["job"] = "a"
	b := docstore.New("job-states", "team-b")
	b.Data["job"] = "b"

	if _, err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create team-a: %v", err)
	}
	if _, err := s.Create(ctx, b); err != nil {
		t.Fatalf("Create team-b: %v", err)
	}

	got, err := s.Read(ctx, "job-states", "team-a")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Data["job"] != "a" {
		t.Errorf("Data[job] = %q, want %q", got.Data["job"], "a")
	}
}
