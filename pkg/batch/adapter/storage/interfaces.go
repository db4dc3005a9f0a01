// Package storage defines the object storage abstractions used to archive
// staged tables. Concrete backends live in the local and gcs subpackages.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName. contentType is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object name under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes bucket/objectName. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named connection to one storage backend.
type StorageConnection interface {
	StorageExecutor

	// Type returns the backend type, for example "local" or "gcs".
	Type() string
	// Name returns the connection name under adapter.storage.
	Name() string
	// DefaultBucket returns the bucket used when callers pass an empty one.
	DefaultBucket() string
	// Close releases the resources held by the connection.
	Close() error
}

// StorageProvider provides connections of one storage type.
type StorageProvider interface {
	// GetConnection retrieves the connection with the specified name, creating it on first use.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider.
	Type() string
}

// StorageConnectionResolver resolves a storage connection by name.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is an Fx tag used to group all StorageProvider implementations.
const StorageProviderGroup = `group:"storage_providers"`
