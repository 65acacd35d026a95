package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Extractor turns the bytes of a raw document into text.
type Extractor interface {
	// SupportedMIMETypes returns the MIME types this extractor handles.
	SupportedMIMETypes() []string

	// Priority breaks ties when several extractors handle a MIME type.
	// Higher wins.
	Priority() int

	// Extract produces the source document. An empty RawText is not an error.
	Extract(ctx context.Context, raw *domain.RawDocument) (*domain.SourceDocument, error)
}

// ExtractorRegistry selects an extractor for a raw document.
type ExtractorRegistry interface {
	// Register adds an extractor.
	Register(e Extractor)

	// Get returns the best extractor for the MIME type, or nil.
	Get(mimeType string) Extractor

	// Extract extracts with the best extractor, failing with
	// domain.ErrUnsupportedType when there is none.
	Extract(ctx context.Context, raw *domain.RawDocument) (*domain.SourceDocument, error)
}
