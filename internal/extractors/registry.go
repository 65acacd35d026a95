// Package extractors turns raw document bytes into source text. Each
// extractor handles a set of MIME types; the registry picks the one with the
// highest priority.
package extractors

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry selects extractors by MIME type.
type Registry struct {
	mu         sync.RWMutex
	extractors []driven.Extractor
}

// NewRegistry creates a registry holding the given extractors.
func NewRegistry(extractors ...driven.Extractor) *Registry {
	r := &Registry{}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds an extractor. Extractors are kept in descending priority so
// that lookups return the first match.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extractors = append(r.extractors, e)
	sort.SliceStable(r.extractors, func(i, j int) bool {
		return r.extractors[i].Priority() > r.extractors[j].Priority()
	})
}

// Get returns the best extractor for the MIME type, or nil. Parameters such
// as charset are ignored.
func (r *Registry) Get(mimeType string) driven.Extractor {
	base := BaseMIMEType(mimeType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.extractors {
		for _, supported := range e.SupportedMIMETypes() {
			if supported == base {
				return e
			}
		}
	}
	return nil
}

// Extract runs the best extractor for the raw document.
func (r *Registry) Extract(ctx context.Context, raw *domain.RawDocument) (*domain.SourceDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	e := r.Get(raw.MIMEType)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedType, raw.MIMEType)
	}
	return e.Extract(ctx, raw)
}

// SupportedMIMETypes returns every MIME type some extractor handles, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var types []string
	for _, e := range r.extractors {
		for _, t := range e.SupportedMIMETypes() {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	sort.Strings(types)
	return types
}

// BaseMIMEType strips parameters and lowercases a MIME type.
func BaseMIMEType(mimeType string) string {
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		return base
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
