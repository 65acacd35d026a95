// Package html extracts readable text from web pages. Known hosts use
// per-site CSS selector rules; other pages fall back to readability
// extraction and finally to tag stripping.
package html

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdhtml "html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"code.sajari.com/docconv"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// ErrSelectorNotFound is returned when a page from a known host lacks one
// of the host's required selectors.
var ErrSelectorNotFound = errors.New("required selector not found")

// Verify interface compliance.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles HTML documents.
type Extractor struct {
	rules       SiteRules
	readability bool
}

// Option configures the extractor.
type Option func(*Extractor)

// WithSiteRules replaces the site rules.
func WithSiteRules(rules SiteRules) Option {
	return func(e *Extractor) {
		e.rules = rules
	}
}

// WithReadability toggles readability extraction for hosts without rules.
func WithReadability(enabled bool) Option {
	return func(e *Extractor) {
		e.readability = enabled
	}
}

// New creates an HTML extractor with the built-in site rules.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		rules:       DefaultSiteRules(),
		readability: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 10
}

// Extract converts an HTML page into a source document.
func (e *Extractor) Extract(_ context.Context, raw *domain.RawDocument) (*domain.SourceDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := pageTitle(doc, raw.URI)
	host := hostOf(raw.URI)

	var text, method string
	if selectors, ok := e.rules.Lookup(host); ok {
		text, err = selectText(doc, selectors)
		if err != nil {
			logger.Warn("Skipping %s: %v", raw.SourceID, err)
			return nil, err
		}
		method = "site_rules"
	} else {
		text, method = e.fallbackText(doc, raw.Content)
	}

	metadata := domain.CopyMetadata(raw.Metadata)
	metadata["source_id"] = raw.SourceID
	metadata["mime_type"] = raw.MIMEType
	metadata["format"] = "html"
	metadata["extraction"] = method
	if host != "" {
		metadata["host"] = host
	}

	return &domain.SourceDocument{
		SourceID: raw.SourceID,
		Origin:   raw.Origin,
		Title:    title,
		RawText:  text,
		Metadata: metadata,
	}, nil
}

// fallbackText extracts text from a page without site rules.
func (e *Extractor) fallbackText(doc *goquery.Document, content []byte) (string, string) {
	if e.readability {
		body, _, err := docconv.ConvertHTML(bytes.NewReader(content), true)
		if err != nil {
			logger.Debug("Readability extraction failed: %v", err)
		} else if strings.TrimSpace(body) != "" {
			return markHeadings(body, doc), "readability"
		}
	}

	if text := renderBlocks(doc.Selection); strings.TrimSpace(text) != "" {
		return text, "document"
	}
	return StripTags(string(content)), "strip"
}

// minHeadingCoverage is the share of the readability text the re-rendered
// blocks must cover for markHeadings to use them.
const minHeadingCoverage = 0.8

// markHeadings re-renders the page keeping only the blocks readability kept,
// so headings come back as "## Heading" paragraphs. When the blocks do not
// line up with the readability text, body is returned unchanged.
func markHeadings(body string, doc *goquery.Document) string {
	kept := cleanInline(body)
	var (
		out     []string
		covered int
	)
	for _, p := range strings.Split(renderBlocks(doc.Selection), "\n\n") {
		text := strings.TrimPrefix(p, "## ")
		if text == "" || !strings.Contains(kept, text) {
			continue
		}
		out = append(out, p)
		covered += len(text) + 1
	}
	if len(out) == 0 || float64(covered) < minHeadingCoverage*float64(len(kept)) {
		return body
	}
	return strings.Join(out, "\n\n")
}

// selectText renders each selector's matches in order. Matches nested in
// another match of the same selector are rendered once, as part of the
// outer one. A selector with no match fails the page.
func selectText(doc *goquery.Document, selectors []string) (string, error) {
	parts := make([]string, 0, len(selectors))
	for _, selector := range selectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			return "", fmt.Errorf("%w: %q", ErrSelectorNotFound, selector)
		}
		if text := strings.TrimSpace(renderBlocks(outermost(sel))); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// outermost drops the nodes of sel that have an ancestor in sel.
func outermost(sel *goquery.Selection) *goquery.Selection {
	nodes := make(map[*html.Node]bool, sel.Length())
	for _, n := range sel.Nodes {
		nodes[n] = true
	}
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		for p := s.Nodes[0].Parent; p != nil; p = p.Parent {
			if nodes[p] {
				return false
			}
		}
		return true
	})
}

// pageTitle returns <title>, else the first h1, else a name derived from the URI.
func pageTitle(doc *goquery.Document, uri string) string {
	if t := cleanInline(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := cleanInline(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return titleFromURI(uri)
}

func titleFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	name := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	if name == "" || name == "/" || name == "." {
		return u.Hostname()
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

func hostOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return normaliseHost(u.Hostname())
}

var (
	skippedElements = map[string]bool{
		"script": true, "style": true, "noscript": true, "svg": true,
		"head": true, "iframe": true, "template": true,
	}
	blockElements = map[string]bool{
		"p": true, "div": true, "section": true, "article": true, "main": true,
		"header": true, "footer": true, "aside": true, "nav": true,
		"ul": true, "ol": true, "li": true, "table": true, "tr": true,
		"blockquote": true, "pre": true, "figure": true, "figcaption": true,
		"br": true, "hr": true, "dl": true, "dt": true, "dd": true,
	}
	headingElements = map[string]bool{
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
)

// renderBlocks renders the selection as paragraphs. Headings become
// "## Heading" paragraphs and block elements break paragraphs.
func renderBlocks(sel *goquery.Selection) string {
	r := &blockRenderer{}
	for _, n := range sel.Nodes {
		r.walk(n)
	}
	r.flush()
	return strings.Join(r.paragraphs, "\n\n")
}

type blockRenderer struct {
	paragraphs []string
	current    strings.Builder
}

func (r *blockRenderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.current.WriteString(n.Data)
		return
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if skippedElements[name] {
			return
		}
		if headingElements[name] {
			r.flush()
			if t := cleanInline(nodeText(n)); t != "" {
				r.paragraphs = append(r.paragraphs, "## "+t)
			}
			return
		}
		if blockElements[name] {
			r.flush()
			defer r.flush()
		}
	case html.CommentNode:
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

func (r *blockRenderer) flush() {
	if t := cleanInline(r.current.String()); t != "" {
		r.paragraphs = append(r.paragraphs, t)
	}
	r.current.Reset()
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode && skippedElements[strings.ToLower(n.Data)] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// cleanInline collapses whitespace into single spaces.
func cleanInline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	stripHidden   = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)[^>]*>.*?</(script|style|noscript|head|svg)>`)
	stripComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	stripBlocks   = regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	stripTags     = regexp.MustCompile(`<[^>]+>`)
	stripSpaces   = regexp.MustCompile(`[ \t]+`)
	stripNewlines = regexp.MustCompile(`\n{3,}`)
)

// StripTags is the last-resort HTML to text conversion.
func StripTags(content string) string {
	content = stripHidden.ReplaceAllString(content, "")
	content = stripComments.ReplaceAllString(content, "")
	content = stripBlocks.ReplaceAllString(content, "\n\n")
	content = stripTags.ReplaceAllString(content, "")
	content = stdhtml.UnescapeString(content)
	content = stripSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	content = strings.Join(lines, "\n")
	content = stripNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
