package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OffsetStore persists the consumed byte offset of the arrival file so a
// restarted ingestor resumes where it stopped. An empty path keeps the
// offset in memory only.
type OffsetStore struct {
	path string
}

// NewOffsetStore creates a store backed by the sidecar file at path
func NewOffsetStore(path string) *OffsetStore {
	return &OffsetStore{path: path}
}

// Path returns the sidecar location
func (s *OffsetStore) Path() string {
	return s.path
}

// Load returns the persisted offset. A missing sidecar means offset zero.
func (s *OffsetStore) Load() (int64, error) {
	if s.path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading offset: %w", err)
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("corrupt offset file %s: %q", s.path, data)
	}
	return offset, nil
}

// Save writes the offset to a temporary file and renames it over the sidecar
func (s *OffsetStore) Save(offset int64) error {
	if s.path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("saving offset: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatInt(offset, 10) + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("saving offset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving offset: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("saving offset: %w", err)
	}
	return nil
}
