// Package fingerprint assigns each chunk its content-derived identity.
package fingerprint

import (
	"context"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor sets Chunk.ID to the chunk fingerprint.
type Processor struct {
	shared bool
}

// Option configures the fingerprint processor.
type Option func(*Processor)

// WithSharedNamespace makes URL and PDF sources share one key space, so the
// same source ID yields the same fingerprints regardless of origin.
func WithSharedNamespace(shared bool) Option {
	return func(p *Processor) {
		p.shared = shared
	}
}

// New creates a fingerprint processor.
func New(opts ...Option) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "fingerprint"
}

// Process fingerprints every chunk and records it in metadata.
func (p *Processor) Process(_ context.Context, doc *domain.NormalizedDocument, chunks []domain.Chunk) ([]domain.Chunk, error) {
	key := domain.SourceKey(doc.Origin, doc.SourceID, p.shared)
	for i := range chunks {
		c := &chunks[i]
		fp := domain.NewFingerprint(key, c.Index, c.Text)
		c.ID = fp.String()
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		c.Metadata["fingerprint"] = c.ID
	}
	return chunks, nil
}
