package measurement

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store keeps exactly one record. Load fails soft: a missing or malformed
// record is replaced by the zero default, which is persisted before returning.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, r Record) error
}

// FileStore persists the record as a raw fixed-size image in a single file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Record, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()

	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("no stored measurement, writing default", "path", s.path)
		return s.saveDefault(ctx)
	case err != nil:
		return Record{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var r Record
	if err := r.UnmarshalBinary(data); err != nil {
		slog.Warn("stored measurement unreadable, writing default", "path", s.path, "error", err)
		return s.saveDefault(ctx)
	}
	return r, nil
}

func (s *FileStore) saveDefault(ctx context.Context) (Record, error) {
	var r Record
	if err := s.Save(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

// Save writes the image to a temp file in the same directory and renames it
// over the target, so a concurrent reader sees either the old or the new file.
func (s *FileStore) Save(_ context.Context, r Record) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}
