package storage

import "context"

// ObjectStore is the minimal blob-store surface the artifact cache needs.
// Any object-storage-like service can satisfy it.
type ObjectStore interface {
	// Exists reports whether an object is present under the key.
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns the full object content.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the object, overwriting any previous content under the key.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
