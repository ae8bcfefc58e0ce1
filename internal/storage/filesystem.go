package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errNoStore = errors.New("storage: no store configured")

// FileStore keeps images under a local directory. Files are written to a temp
// name and renamed into place so /static never serves a partial image.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.root
}

// locate validates key and maps it under the root.
func (s *FileStore) locate(ctx context.Context, key string) (clean, full string, err error) {
	if s == nil {
		return "", "", errNoStore
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if clean, err = sanitizeKey(key); err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Write stores data at key and returns the canonical key. The content type
// is implied by the key's extension.
func (s *FileStore) Write(ctx context.Context, key string, data []byte, _ string) (string, error) {
	clean, full, err := s.locate(ctx, key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", clean, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("storage: chmod %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("storage: commit %s: %w", clean, err)
	}
	return clean, nil
}

func (s *FileStore) Read(ctx context.Context, key string) ([]byte, string, error) {
	clean, full, err := s.locate(ctx, key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, "", ErrNotFound
	case err != nil:
		return nil, "", fmt.Errorf("storage: read %s: %w", clean, err)
	}
	return data, ContentTypeForKey(clean), nil
}

var _ Store = (*FileStore)(nil)
