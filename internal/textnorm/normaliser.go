package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextNormaliser = (*Normaliser)(nil)

// ParagraphBreak separates paragraphs in normalised text.
const ParagraphBreak = "\n\n"

// Options configures optional normalisation steps.
type Options struct {
	// Lowercase folds text to lower case.
	Lowercase bool

	// StripAcademicNoise removes captions, OCR footnotes, comments and back matter.
	StripAcademicNoise bool
}

// Normaliser implements driven.TextNormaliser.
type Normaliser struct {
	opts Options
}

// New creates a normaliser.
func New(opts Options) *Normaliser {
	return &Normaliser{opts: opts}
}

// Options returns the configured options.
func (n *Normaliser) Options() Options {
	return n.opts
}

// maxOptionPasses bounds how often the optional steps are re-applied.
const maxOptionPasses = 8

// Normalise returns the canonical form of text. The result is a fixed point:
// normalising it again returns it unchanged.
func (n *Normaliser) Normalise(text string) string {
	s := stripControls(text)
	s = RepairGlyphArtefacts(s)
	s = norm.NFC.String(s)
	if n.opts.StripAcademicNoise {
		s = StripAcademicNoise(s)
	}
	s = norm.NFC.String(CollapseWhitespace(s))
	if !n.opts.StripAcademicNoise && !n.opts.Lowercase {
		return s
	}

	// Collapsing joins wrapped lines, which can expose new line-anchored
	// noise. Repeat on the collapsed text until nothing changes.
	for i := 0; i < maxOptionPasses; i++ {
		next := n.applyOptions(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// applyOptions runs the optional steps over collapsed text.
func (n *Normaliser) applyOptions(s string) string {
	if n.opts.StripAcademicNoise {
		s = CollapseWhitespace(StripAcademicNoise(s))
	}
	if n.opts.Lowercase {
		s = strings.ToLower(s)
	}
	return norm.NFC.String(s)
}

// NormaliseDocument normalises a source document. Paged documents are
// normalised page by page and joined with paragraph breaks; empty pages are
// dropped and the rune offset of every kept page is recorded.
func (n *Normaliser) NormaliseDocument(doc *domain.SourceDocument) *domain.NormalizedDocument {
	out := &domain.NormalizedDocument{
		SourceID: doc.SourceID,
		Origin:   doc.Origin,
		Title:    n.Normalise(doc.Title),
		Metadata: domain.CopyMetadata(doc.Metadata),
	}

	if len(doc.Pages) == 0 {
		out.Text = n.Normalise(doc.RawText)
		return out
	}

	var b strings.Builder
	offset := 0
	for _, p := range doc.Pages {
		text := n.Normalise(p.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(ParagraphBreak)
			offset += len(ParagraphBreak)
		}
		out.Pages = append(out.Pages, domain.PageOffset{Number: p.Number, Start: offset})
		b.WriteString(text)
		offset += len([]rune(text))
	}
	out.Text = b.String()
	return out
}

var glyphArtefact = regexp.MustCompile(`(?i:/uni)([0-9A-Fa-f]{4})[A-Za-z]?`)

// RepairGlyphArtefacts replaces "/uniXXXX" sequences left by some PDF
// producers with the code point they name. A single ASCII letter glued to
// the artefact is a rendering leftover and is dropped with it. Replacement
// repeats until no artefact remains; every pass shortens the text.
func RepairGlyphArtefacts(s string) string {
	for glyphArtefact.MatchString(s) {
		s = glyphArtefact.ReplaceAllStringFunc(s, func(m string) string {
			code, err := strconv.ParseUint(m[4:8], 16, 32)
			if err != nil {
				return m
			}
			r := rune(code)
			switch {
			case r == '\n':
				return "\n"
			case unicode.IsSpace(r):
				return " "
			case !unicode.IsPrint(r), r == unicode.ReplacementChar:
				return ""
			default:
				return string(r)
			}
		})
	}
	return s
}

// stripControls converts line endings to LF, turns every non-newline space
// into ' ' and drops control and format runes.
func stripControls(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\r' || r == '\v' || r == '\f' || r == '\u2028' || r == '\u2029':
			return '\n'
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		case r == unicode.ReplacementChar:
			return -1
		default:
			return r
		}
	}, s)
}

// CollapseWhitespace trims lines, joins the lines of a paragraph with single
// spaces and separates paragraphs with exactly one blank line.
func CollapseWhitespace(s string) string {
	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = current[:0]
		}
	}

	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return strings.Join(paragraphs, ParagraphBreak)
}
