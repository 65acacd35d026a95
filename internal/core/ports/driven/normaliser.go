package driven

import (
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// TextNormaliser canonicalises text. Implementations must be pure,
// deterministic and idempotent: Normalise(Normalise(x)) == Normalise(x).
type TextNormaliser interface {
	// Normalise returns the canonical form of text.
	Normalise(text string) string

	// NormaliseDocument normalises a source document, page by page when it
	// has pages, recording page offsets in the result.
	NormaliseDocument(doc *domain.SourceDocument) *domain.NormalizedDocument
}
