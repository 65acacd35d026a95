package extractors

import (
	"github.com/custodia-labs/sercha-ingest/internal/extractors/html"
	"github.com/custodia-labs/sercha-ingest/internal/extractors/pdf"
	"github.com/custodia-labs/sercha-ingest/internal/extractors/plaintext"
)

// NewDefaultRegistry returns a registry with the HTML, PDF and plain text
// extractors. Extra site rules are merged over the built-in ones.
func NewDefaultRegistry(extraRules html.SiteRules) *Registry {
	rules := html.DefaultSiteRules().Merge(extraRules)
	return NewRegistry(
		html.New(html.WithSiteRules(rules)),
		pdf.New(),
		plaintext.New(),
	)
}
