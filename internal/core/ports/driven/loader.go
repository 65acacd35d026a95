package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Loader produces the raw documents of one input kind.
// Implementations: web.Loader (URL list), pdfdir.Loader (PDF directory).
type Loader interface {
	// Name returns the loader name for logging.
	Name() string

	// Origin returns the kind of documents this loader produces.
	Origin() domain.Origin

	// Validate checks that the input exists and the loader can run.
	// A failure is a configuration error for the whole run.
	Validate(ctx context.Context) error

	// Load returns a finite, non-restartable sequence of raw documents.
	// Per-document failures arrive on the error channel as *domain.LoadError
	// and do not stop the sequence. Both channels are closed when done.
	Load(ctx context.Context) (<-chan domain.RawDocument, <-chan error)
}
