// Package storage provides the object storage backends chunk archives are
// written to.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations are S3 and the local filesystem.
type ObjectStorage interface {
	// Put stores data under key and returns the object's ETag.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// ConditionalPut stores data only if the object's current ETag is etag.
	// An empty etag requires the object not to exist yet.
	ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error)

	// Get returns the contents of key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	PartSize int64
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize: 5 * 1024 * 1024, // 5MB
	}
}
