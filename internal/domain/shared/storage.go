package shared

import "context"

// ObjectStorage is the blob store holding documents, manifests and
// signed artifacts. Keys follow {owner}/{batchId}/{artifact}.
type ObjectStorage interface {
	// Put writes data under key, replacing any previous object
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads the object stored under key. Returns ErrNotFound if missing.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error
}
