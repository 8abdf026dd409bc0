package local_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/steward"
	"github.com/xraph/steward/archive/local"
)

func newBackend(t *testing.T) *local.Backend {
	t.Helper()
	b, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestPutGet(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.Put(ctx, "snapshots/a.json", []byte("alpha")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := b.Get(ctx, "snapshots/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "alpha" {
		t.Fatalf("Get = %q, want %q", data, "alpha")
	}
}

func TestPutOverwrites(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.Put(ctx, "k", []byte("one")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put(ctx, "k", []byte("two")); err != nil {
		t.Fatalf("Put again: %v", err)
	}
	data, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("Get = %q, want %q", data, "two")
	}
}

func TestGetMissing(t *testing.T) {
	b := newBackend(t)

	_, err := b.Get(context.Background(), "snapshots/nope.json")
	if !errors.Is(err, steward.ErrSnapshotNotFound) {
		t.Fatalf("Get missing = %v, want ErrSnapshotNotFound", err)
	}
}

func TestList(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	for _, key := range []string{"snapshots/b.json", "snapshots/a.json", "other/c.json"} {
		if err := b.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Put %q: %v", key, err)
		}
	}

	keys, err := b.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List returned %d keys, want 2: %v", len(keys), keys)
	}
	for _, key := range keys {
		if key != "snapshots/a.json" && key != "snapshots/b.json" {
			t.Fatalf("unexpected key %q", key)
		}
	}
}

func TestListEmpty(t *testing.T) {
	b := newBackend(t)

	keys, err := b.List(context.Background(), "snapshots/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("List on empty backend = %v, want none", keys)
	}
}

func TestDelete(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.Put(ctx, "snapshots/a.json", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Delete(ctx, "snapshots/a.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get(ctx, "snapshots/a.json"); !errors.Is(err, steward.ErrSnapshotNotFound) {
		t.Fatalf("Get after delete = %v, want ErrSnapshotNotFound", err)
	}
	if err := b.Delete(ctx, "snapshots/a.json"); !errors.Is(err, steward.ErrSnapshotNotFound) {
		t.Fatalf("Delete missing = %v, want ErrSnapshotNotFound", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	for _, key := range []string{"../outside", "/etc/passwd", "a/../../b"} {
		if err := b.Put(ctx, key, []byte("x")); err == nil {
			t.Fatalf("Put %q succeeded, want error", key)
		}
	}
}
