// Package plaintext extracts plain text and markdown documents.
package plaintext

import (
	"context"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles plain text documents.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/plain", "text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 5
}

// Extract returns the content as text. Invalid UTF-8 sequences are replaced
// with U+FFFD.
func (e *Extractor) Extract(_ context.Context, raw *domain.RawDocument) (*domain.SourceDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := string(raw.Content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}

	metadata := domain.CopyMetadata(raw.Metadata)
	metadata["source_id"] = raw.SourceID
	metadata["mime_type"] = raw.MIMEType
	metadata["format"] = "text"

	return &domain.SourceDocument{
		SourceID: raw.SourceID,
		Origin:   raw.Origin,
		Title:    extractTitle(raw),
		RawText:  text,
		Metadata: metadata,
	}, nil
}

// extractTitle checks metadata for a title first, then falls back to the URI.
func extractTitle(raw *domain.RawDocument) string {
	if title, ok := raw.Metadata["title"].(string); ok && title != "" {
		return title
	}

	filename := path.Base(raw.URI)
	if filename == "." || filename == "/" {
		return ""
	}
	filename = strings.TrimSuffix(filename, path.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}
