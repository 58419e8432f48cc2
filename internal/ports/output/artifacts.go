// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"io"
)

// ArtifactStorage defines the secondary port for staging preview artifacts.
// Keys are flat, opaque names; backends may nest them under a configured
// prefix.
type ArtifactStorage interface {
	// Put stores an artifact payload and returns the number of bytes
	// written.
	Put(ctx context.Context, key string, contentType string, body io.Reader) (int64, error)

	// GetReader returns a reader for the artifact plus its content type.
	GetReader(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Exists checks if an artifact exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all stored artifacts.
	List(ctx context.Context) ([]StorageObject, error)

	// Delete removes an artifact. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// StorageObject represents a stored artifact.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
)
