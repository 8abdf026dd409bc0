// Package local provides a filesystem-backed archive backend. Keys map
// to file paths under a root directory; useful for development and
// single-node deployments.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xraph/steward"
	"github.com/xraph/steward/archive"
)

// Backend stores snapshot objects as files under a root directory.
type Backend struct {
	root string
}

var _ archive.Backend = (*Backend)(nil)

// New creates a filesystem backend rooted at dir. The directory is
// created if it does not exist.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local: creating root %q: %w", dir, err)
	}
	return &Backend{root: dir}, nil
}

// Put writes data to the file named by key, creating parent directories
// as needed. Writes go through a temp file and rename so readers never
// see a partial object.
func (b *Backend) Put(_ context.Context, key string, data []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("local: creating directory for %q: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".steward-*")
	if err != nil {
		return fmt.Errorf("local: creating temp file for %q: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("local: writing %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: closing %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: renaming %q: %w", key, err)
	}
	return nil
}

// Get reads the object stored under key.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("local: %w: %q", steward.ErrSnapshotNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("local: reading %q: %w", key, err)
	}
	return data, nil
}

// List returns all keys under the given prefix in lexicographic order.
func (b *Backend) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".steward-") {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: listing %q: %w", prefix, err)
	}
	return keys, nil
}

// Delete removes the object stored under key.
func (b *Backend) Delete(_ context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("local: %w: %q", steward.ErrSnapshotNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("local: deleting %q: %w", key, err)
	}
	return nil
}

// path maps a key to a filesystem path, rejecting keys that escape the
// root directory.
func (b *Backend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("local: invalid key %q", key)
	}
	return filepath.Join(b.root, clean), nil
}
