package driven

import "context"

// DedupCache is a shared set of fingerprints already persisted, scoped by
// collection. It is an accelerator only: the vector store stays the source
// of truth.
type DedupCache interface {
	// Contains reports whether the id is cached.
	Contains(ctx context.Context, collection, id string) (bool, error)

	// Add caches ids.
	Add(ctx context.Context, collection string, ids ...string) error

	// Remove evicts ids, for records deleted from the store.
	Remove(ctx context.Context, collection string, ids ...string) error

	// Close releases resources.
	Close() error
}
