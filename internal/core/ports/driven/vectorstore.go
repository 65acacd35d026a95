package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// VectorStore persists records keyed by fingerprint within a collection.
// Implementations: sqlite, postgres (pgvector), qdrant, memory.
type VectorStore interface {
	// Name returns the store name for logging.
	Name() string

	// Upsert inserts or overwrites records. Records whose id already exists
	// replace the stored record; this never fails with a duplicate key.
	Upsert(ctx context.Context, collection string, records []domain.StoreRecord) error

	// Exists reports whether a record with the id is stored.
	Exists(ctx context.Context, collection, id string) (bool, error)

	// DeleteSourceExcept deletes the records whose "origin" and "source_id"
	// metadata match and for which keep returns false, and returns the
	// deleted ids sorted. It removes the chunks of an earlier version of an
	// edited source.
	DeleteSourceExcept(ctx context.Context, collection string, origin domain.Origin, sourceID string, keep func(id string) bool) ([]string, error)

	// Close releases resources.
	Close() error
}

// IDLister is implemented by stores that can list every id of a collection
// cheaply. It is used to warm the dedup cache at startup.
type IDLister interface {
	ListIDs(ctx context.Context, collection string) ([]string, error)
}
