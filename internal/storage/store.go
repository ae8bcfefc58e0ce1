// Package storage persists generated images and serves them back by key.
package storage

import (
	"context"
	"errors"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Read when no object exists for the key.
var ErrNotFound = errors.New("storage: object not found")

// Store is the asset store used by the generation service, the export helper
// and the static file route.
type Store interface {
	// Write persists data under key and returns the canonical key.
	Write(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Read returns the object bytes and content type.
	Read(ctx context.Context, key string) ([]byte, string, error)
}

// ContentTypeForKey guesses the MIME type from the key extension.
func ContentTypeForKey(key string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(key))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
