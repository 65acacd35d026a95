// Package chunker splits normalised text into overlapping, size-bounded chunks.
package chunker

import (
	"context"
	"unicode"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of runes per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping runes.
const DefaultChunkOverlap = 200

// Verify interface compliance.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor splits document text into windows of at most chunkSize runes,
// each starting overlap runes before the previous one ended.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the maximum chunk size in runes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in runes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Settings validation rejects this; keep the loop terminating regardless.
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the maximum chunk size in runes.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the overlap in runes.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process splits the document text into chunks.
// Input chunks are ignored; this processor creates new chunks.
func (p *Processor) Process(ctx context.Context, doc *domain.NormalizedDocument, _ []domain.Chunk) ([]domain.Chunk, error) {
	spans := p.Split(doc.Text)
	if len(spans) == 0 {
		return nil, nil
	}

	runes := []rune(doc.Text)
	chunks := make([]domain.Chunk, 0, len(spans))

	for i, s := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, domain.Chunk{
			SourceID: doc.SourceID,
			Origin:   doc.Origin,
			Index:    i,
			Text:     string(runes[s.Start:s.End]),
			Start:    s.Start,
			Metadata: map[string]any{
				"source_id":   doc.SourceID,
				"origin":      doc.Origin.String(),
				"chunk_index": i,
				"chunk_count": len(spans),
			},
		})
	}

	return chunks, nil
}

// Span is a half-open rune range [Start, End) of the input text.
type Span struct {
	Start int
	End   int
}

// Split returns the chunk windows for text. Empty text yields no spans and
// text no longer than the chunk size yields exactly one.
func (p *Processor) Split(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var spans []Span
	start := 0
	for {
		if n-start <= p.chunkSize {
			spans = append(spans, Span{Start: start, End: n})
			return spans
		}
		end := p.cut(runes, start)
		spans = append(spans, Span{Start: start, End: end})
		start = end - p.overlap
	}
}

// cut picks the end of the window starting at start. The search range keeps
// every window longer than the overlap, so the next start always advances.
func (p *Processor) cut(runes []rune, start int) int {
	limit := start + p.chunkSize
	lo := start + p.overlap
	if half := start + p.chunkSize/2; half > lo {
		lo = half
	}

	if end := lastBoundary(runes, lo, limit, isParagraphBreak); end > 0 {
		return end
	}
	if end := lastBoundary(runes, lo, limit, isSentenceEnd); end > 0 {
		return end
	}
	if end := lastBoundary(runes, lo, limit, isWhitespace); end > 0 {
		return end
	}
	return limit
}

// lastBoundary returns the largest e in (lo, limit] for which match holds,
// or 0 when there is none.
func lastBoundary(runes []rune, lo, limit int, match func([]rune, int) bool) int {
	for e := limit; e > lo; e-- {
		if match(runes, e) {
			return e
		}
	}
	return 0
}

// isParagraphBreak reports whether a paragraph break starts at e.
func isParagraphBreak(runes []rune, e int) bool {
	return e+1 < len(runes) && runes[e] == '\n' && runes[e+1] == '\n'
}

// isSentenceEnd reports whether e directly follows sentence punctuation and
// precedes whitespace.
func isSentenceEnd(runes []rune, e int) bool {
	if e < 1 || e >= len(runes) || !unicode.IsSpace(runes[e]) {
		return false
	}
	switch runes[e-1] {
	case '.', '!', '?', '…', ';':
		return true
	}
	return false
}

// isWhitespace reports whether whitespace starts at e.
func isWhitespace(runes []rune, e int) bool {
	return e < len(runes) && unicode.IsSpace(runes[e])
}
