// Package sections annotates chunks with their document title, the heading
// they fall under and the pages they span.
package sections

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/textnorm"
)

// UntitledDocument is the title used when a document has neither a title nor
// a heading.
const UntitledDocument = "Untitled Document"

// maxSectionRunes bounds section labels taken from heading paragraphs.
const maxSectionRunes = 200

// Verify interface compliance.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor tags chunks with doc_title, section and page metadata.
type Processor struct{}

// New creates a sections processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "sections"
}

// heading is a heading paragraph and its rune offset in the text.
type heading struct {
	offset int
	title  string
}

// Process annotates chunks in place and returns them.
func (p *Processor) Process(_ context.Context, doc *domain.NormalizedDocument, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	headings := findHeadings(doc.Text)
	title := strings.TrimSpace(doc.Title)
	if title == "" && len(headings) > 0 {
		title = headings[0].title
	}
	if title == "" {
		title = UntitledDocument
	}

	for i := range chunks {
		c := &chunks[i]
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		c.Metadata["doc_title"] = title

		if section := sectionAt(headings, c.Start); section != "" {
			c.Metadata["section"] = section
		}

		if len(doc.Pages) > 0 {
			end := c.Start + utf8.RuneCountInString(c.Text) - 1
			if end < c.Start {
				end = c.Start
			}
			c.Metadata["page_number"] = doc.PageAt(c.Start)
			c.Metadata["page_end"] = doc.PageAt(end)
		}
	}

	return chunks, nil
}

// findHeadings returns the heading paragraphs of text in order. A heading
// paragraph starts with one or more '#' followed by a space.
func findHeadings(text string) []heading {
	var headings []heading
	offset := 0
	for _, para := range strings.Split(text, textnorm.ParagraphBreak) {
		if t, ok := headingTitle(para); ok {
			headings = append(headings, heading{offset: offset, title: t})
		}
		offset += utf8.RuneCountInString(para) + utf8.RuneCountInString(textnorm.ParagraphBreak)
	}
	return headings
}

func headingTitle(para string) (string, bool) {
	trimmed := strings.TrimLeft(para, "#")
	if trimmed == para || !strings.HasPrefix(trimmed, " ") {
		return "", false
	}
	t := strings.TrimSpace(trimmed)
	if t == "" {
		return "", false
	}
	if utf8.RuneCountInString(t) > maxSectionRunes {
		t = string([]rune(t)[:maxSectionRunes])
	}
	return t, true
}

// sectionAt returns the nearest heading at or before offset.
func sectionAt(headings []heading, offset int) string {
	section := ""
	for _, h := range headings {
		if h.offset > offset {
			break
		}
		section = h.title
	}
	return section
}
