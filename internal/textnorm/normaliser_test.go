package textnorm

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestNormalise(t *testing.T) {
	n := New(Options{})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"only whitespace", " \t\n\n  ", ""},
		{"trims and collapses spaces", "  hello   world  ", "hello world"},
		{"joins wrapped lines", "first line\nsecond line", "first line second line"},
		{"keeps paragraph breaks", "para one\n\n\n\npara two", "para one\n\npara two"},
		{"crlf", "a\r\nb\r\n\r\nc", "a b\n\nc"},
		{"tabs and nbsp", "a\tb\u00a0c", "a b c"},
		{"drops zero width and bom", "\ufeffa\u200bb\u00adc", "abc"},
		{"drops control characters", "a\x00b\x07c", "abc"},
		{"form feed is a line break", "page one\fpage two", "page one page two"},
		{"composes combining marks", "Vie\u0323\u0302t Nam", "Vi\u1ec7t Nam"},
		{"repairs glyph artefacts", "kh/uni1ECFe m/uni1EA1", "khỏ mạ"},
		{"repairs upper-case artefacts", "/UNI0110ông", "Đông"},
		{"keeps case by default", "Lúa Gạo", "Lúa Gạo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalise(tt.input))
		})
	}
}

func TestNormalise_Lowercase(t *testing.T) {
	n := New(Options{Lowercase: true})
	assert.Equal(t, "lúa gạo việt nam", n.Normalise("LÚA Gạo VIỆT Nam"))
	assert.True(t, n.Options().Lowercase)
}

func TestNormalise_VisuallyEqualStringsCompareEqual(t *testing.T) {
	n := New(Options{})
	composed := "Nghiên cứu giống lúa"
	decomposed := norm.NFD.String(composed)
	require.NotEqual(t, composed, decomposed)

	assert.Equal(t, n.Normalise(composed), n.Normalise(decomposed))
}

func TestNormalise_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"  Hello\r\n  World \t\n\n\n Next para\u200b ",
		"Việt Nam /uni1EA1 //uni0075xni0041",
		"## Nghiên cứu lúa\nTác giả A\n## TÓM TẮT\nNội dung\nHình 1. Ảnh\n2 Footnote Text\n<!-- x -->\n## LỜI CẢM ƠN\ncảm ơn",
		"\u212Aelvin \u2126   spaces",
		strings.Repeat("word ", 100) + "\n\n" + strings.Repeat("từ ", 50),
		"abc /uniFFFD def",
		"/uni\ufffd0041 x",
		"0\nA0",
		"intro\n3\nGhi chú cuối trang\n\nnext",
		"<!-- c -->## LỜI CẢM ƠN\ncảm ơn",
		"Hình\n2. Ảnh minh hoạ\n\nthân bài",
	}

	for _, opts := range []Options{{}, {Lowercase: true}, {StripAcademicNoise: true}, {Lowercase: true, StripAcademicNoise: true}} {
		n := New(opts)
		for _, in := range inputs {
			once := n.Normalise(in)
			assert.Equal(t, once, n.Normalise(once), "opts %+v input %q", opts, in)
		}
	}
}

func TestNormalise_ReplacementCharacterArtefactIsDropped(t *testing.T) {
	n := New(Options{})
	assert.Equal(t, "abc def", n.Normalise("abc /uniFFFD def"))
}

func TestNormalise_NoiseExposedByJoiningLinesIsRemoved(t *testing.T) {
	n := New(Options{StripAcademicNoise: true, Lowercase: true})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"footnote split over lines", "0\nA0", ""},
		{"footnote after wrapped number", "thân bài\n\n3\nGhi chú", "thân bài"},
		{"comment hiding a tail heading", "mở đầu\n\n<!-- c -->## LỜI CẢM ƠN\ncảm ơn", "mở đầu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := n.Normalise(tt.input)
			assert.Equal(t, tt.want, once)
			assert.Equal(t, once, n.Normalise(once))
		})
	}
}

func FuzzNormalise_Idempotent(f *testing.F) {
	for _, seed := range []string{"0\nA0", "abc /uniFFFD def", "## TÓM TẮT\n1 Ghi\nHình 2. x", "a<!--\n-->b"} {
		f.Add(seed)
	}
	n := New(Options{StripAcademicNoise: true, Lowercase: true})
	f.Fuzz(func(t *testing.T, in string) {
		once := n.Normalise(in)
		if twice := n.Normalise(once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	})
}

func TestNormalise_NoControlCharacters(t *testing.T) {
	n := New(Options{})
	out := n.Normalise("a\x01\x02\tb\r\nc\x7f\u200e\n\nd e")

	for _, r := range out {
		if r == '\n' {
			continue
		}
		assert.False(t, unicode.IsControl(r), "control rune %U", r)
		assert.False(t, unicode.Is(unicode.Cf, r), "format rune %U", r)
	}
	assert.True(t, norm.NFC.IsNormalString(out))
}

func TestRepairGlyphArtefacts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no artefacts", "abc", "abc"},
		{"single", "/uni00E0", "à"},
		{"trailing letter dropped", "kh/uni1ECFe", "khỏ"},
		{"trailing digit kept", "/uni00E01", "à1"},
		{"nested artefact", "//uni0075xni0041", "A"},
		{"control code point removed", "a/uni0007b", "ab"},
		{"space code point", "a/uni00A0b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairGlyphArtefacts(tt.input))
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b\n\nc", CollapseWhitespace("  a  \n b \n \n\n c  "))
	assert.Equal(t, "", CollapseWhitespace("\n\n"))
}

func TestNormaliseDocument_Unpaged(t *testing.T) {
	n := New(Options{})
	doc := &domain.SourceDocument{
		SourceID: "https://example.com/a",
		Origin:   domain.OriginURL,
		Title:    "  Tiêu   đề ",
		RawText:  "line one\nline two",
		Metadata: map[string]any{"source_id": "https://example.com/a"},
	}

	out := n.NormaliseDocument(doc)

	assert.Equal(t, "line one line two", out.Text)
	assert.Equal(t, "Tiêu đề", out.Title)
	assert.Equal(t, domain.OriginURL, out.Origin)
	assert.Empty(t, out.Pages)
	assert.Equal(t, "https://example.com/a", out.Metadata["source_id"])
}

func TestNormaliseDocument_PagedRecordsOffsets(t *testing.T) {
	n := New(Options{})
	doc := &domain.SourceDocument{
		SourceID: "a.pdf",
		Origin:   domain.OriginPDF,
		Pages: []domain.Page{
			{Number: 1, Text: "Trang một"},
			{Number: 2, Text: "   "},
			{Number: 3, Text: "Trang ba\nnối tiếp"},
		},
	}

	out := n.NormaliseDocument(doc)

	assert.Equal(t, "Trang một\n\nTrang ba nối tiếp", out.Text)
	require.Len(t, out.Pages, 2)
	assert.Equal(t, domain.PageOffset{Number: 1, Start: 0}, out.Pages[0])
	assert.Equal(t, 3, out.Pages[1].Number)

	runes := []rune(out.Text)
	assert.Equal(t, "Trang ba", string(runes[out.Pages[1].Start:out.Pages[1].Start+8]))
	assert.Equal(t, out.Text, n.Normalise(out.Text))
}
