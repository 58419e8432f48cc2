// Package storage provides artifact storage backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ports/output"
)

// LocalStorage implements ArtifactStorage on a flat local directory. Content
// types are not stored; the key's extension carries them.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// Put stores an artifact payload and returns the number of bytes written.
func (s *LocalStorage) Put(ctx context.Context, key, contentType string, body io.Reader) (int64, error) {
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(s.basePath, 0750); err != nil {
		return 0, err
	}

	f, err := os.Create(path) //#nosec G304 -- key is validated against traversal
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	return io.Copy(f, body)
}

// GetReader returns a reader for the artifact plus its content type, derived
// from the key's extension.
func (s *LocalStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path) //#nosec G304 -- key is validated against traversal
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, "", err
	}

	return f, contentTypeForKey(key), nil
}

// Exists checks if an artifact exists.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// List returns all stored artifacts. A directory that does not exist yet is
// an empty store, not an error.
func (s *LocalStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	entries, err := os.ReadDir(s.basePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var objects []output.StorageObject
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		objects = append(objects, output.StorageObject{
			Key:          entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})
	}

	return objects, nil
}

// Delete removes an artifact. Deleting a missing key is not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// path resolves a key inside the base directory, rejecting anything that
// could escape it. Keys are flat by contract.
func (s *LocalStorage) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("artifact key %q: %w", key, domain.ErrInvalidInput)
	}
	return filepath.Join(s.basePath, key), nil
}

// contentTypeForKey derives a content type from a key's extension.
func contentTypeForKey(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
