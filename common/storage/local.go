package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// LocalBackend stores objects under a root directory. Keys are
// NFC-normalized on write and matched NFC-insensitively on read:
// client-submitted filenames can arrive NFD-decomposed, and on filesystems
// that preserve the submitted form a byte-exact lookup would miss.
type LocalBackend struct {
	root string
}

// NewLocalBackend creates the backend rooted at dir
func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{root: root}
}

func (b *LocalBackend) abs(path string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	full := filepath.Join(b.root, norm.NFC.String(cleaned))
	if !strings.HasPrefix(full, filepath.Clean(b.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("key escapes storage root: %s", path)
	}
	return full, nil
}

// Get opens an object, falling back to an NFC-insensitive directory scan
// when the normalized path does not exist as written.
func (b *LocalBackend) Get(_ context.Context, key Key) (io.ReadCloser, error) {
	full, err := b.abs(key.Path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	match, err := b.findNormalized(full)
	if err != nil {
		return nil, err
	}
	return os.Open(match)
}

// findNormalized scans the parent directory for an entry whose NFC form
// equals the wanted name.
func (b *LocalBackend) findNormalized(full string) (string, error) {
	dir, want := filepath.Dir(full), norm.NFC.String(filepath.Base(full))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	for _, e := range entries {
		if norm.NFC.String(e.Name()) == want {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", ErrNotFound
}

// Put writes an object atomically via a temp file rename
func (b *LocalBackend) Put(_ context.Context, key Key, r io.Reader, _ string) error {
	full, err := b.abs(key.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), full)
}

// SignedURL returns a file:// URL; ttl does not apply to local files
func (b *LocalBackend) SignedURL(_ context.Context, key Key, _ time.Duration) (string, error) {
	full, err := b.abs(key.Path)
	if err != nil {
		return "", err
	}
	return "file://" + full, nil
}
