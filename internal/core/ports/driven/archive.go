package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// SourceArchive keeps a copy of the raw inputs of a run.
type SourceArchive interface {
	// Key returns the object key the raw document is archived under.
	// Equal content yields equal keys.
	Key(collection string, raw *domain.RawDocument) string

	// Put stores data under key and returns its location.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
