// Package objectstore provides the remote blob storage used for primary
// assets and their thumbnails: streamed puts with progress reporting and
// resolution of retrieval URLs per key.
package objectstore

import "context"

// ProgressFunc receives transfer progress. completed never decreases during
// a single Put; total is the full payload size.
type ProgressFunc func(completed, total int64)

// Store is content-addressable-by-key blob storage.
type Store interface {
	// Put uploads data under key. onProgress may be nil.
	Put(ctx context.Context, key string, data []byte, contentType string, onProgress ProgressFunc) error
	// ResolveURL returns a retrieval URL for key.
	ResolveURL(ctx context.Context, key string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
