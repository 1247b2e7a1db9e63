package taskstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend stores the blob in a JSON file, replacing it with a
// write-to-temp-then-rename so readers never observe a partial file.
type FileBackend struct {
	Path string
}

// Compile-time interface check.
var _ PersistentStore = (*FileBackend)(nil)

// NewFileBackend creates a FileBackend for path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// ReadAll implements PersistentStore.
func (b *FileBackend) ReadAll(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: read %s: %w", b.Path, err)
	}
	return data, nil
}

// WriteAll implements PersistentStore.
func (b *FileBackend) WriteAll(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("taskstore: create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("taskstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("taskstore: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("taskstore: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("taskstore: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		return fmt.Errorf("taskstore: replace %s: %w", b.Path, err)
	}
	return nil
}
