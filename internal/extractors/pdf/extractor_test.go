package pdf

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error

	name     string
	args     []string
	fileSeen []byte
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	if len(args) >= 2 {
		m.fileSeen, _ = os.ReadFile(args[len(args)-2])
	}
	return m.output, m.err
}

func rawPDF(path string) *domain.RawDocument {
	raw := &domain.RawDocument{
		SourceID: "documents_pdf/lua_mua_kho.pdf",
		Origin:   domain.OriginPDF,
		URI:      "/abs/documents_pdf/lua_mua_kho.pdf",
		MIMEType: "application/pdf",
		Content:  []byte("%PDF-1.4 fake pdf content"),
		Metadata: map[string]any{"size_bytes": int64(25)},
	}
	if path != "" {
		raw.Metadata["path"] = path
	}
	return raw
}

func TestExtractor_Basics(t *testing.T) {
	e := New()
	assert.Equal(t, []string{"application/pdf"}, e.SupportedMIMETypes())
	assert.Equal(t, 50, e.Priority())

	var _ driven.Extractor = e

	_, err := e.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewWithRunner(t *testing.T) {
	runner := &mockRunner{}
	e := NewWithRunner(runner)
	assert.Equal(t, runner, e.runner)
}

func TestExtract_Pages(t *testing.T) {
	runner := &mockRunner{output: []byte("Giống lúa chịu hạn\nTrang một\f\f  \fTrang bốn\f")}
	e := NewWithRunner(runner)

	doc, err := e.Extract(context.Background(), rawPDF("/abs/documents_pdf/lua_mua_kho.pdf"))
	require.NoError(t, err)

	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, []string{"-enc", "UTF-8", "-eol", "unix", "/abs/documents_pdf/lua_mua_kho.pdf", "-"}, runner.args)

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, domain.Page{Number: 1, Text: "Giống lúa chịu hạn\nTrang một"}, doc.Pages[0])
	assert.Equal(t, domain.Page{Number: 4, Text: "Trang bốn"}, doc.Pages[1])
	assert.Equal(t, "Giống lúa chịu hạn\nTrang một\n\nTrang bốn", doc.RawText)
	assert.Equal(t, "Giống lúa chịu hạn", doc.Title)

	assert.Equal(t, domain.OriginPDF, doc.Origin)
	assert.Equal(t, 4, doc.Metadata["page_count"])
	assert.Equal(t, "pdf", doc.Metadata["format"])
	assert.Equal(t, int64(25), doc.Metadata["size_bytes"])
	assert.Equal(t, "documents_pdf/lua_mua_kho.pdf", doc.Metadata["source_id"])
}

func TestExtract_NoText(t *testing.T) {
	e := NewWithRunner(&mockRunner{output: []byte("\f\f")})

	doc, err := e.Extract(context.Background(), rawPDF("/abs/x.pdf"))
	require.NoError(t, err)
	assert.Empty(t, doc.RawText)
	assert.Empty(t, doc.Pages)
	assert.Equal(t, "lua mua kho", doc.Title)
	assert.Equal(t, 2, doc.Metadata["page_count"])
}

func TestExtract_TempFileWithoutPath(t *testing.T) {
	runner := &mockRunner{output: []byte("Title\f")}
	e := NewWithRunner(runner)

	_, err := e.Extract(context.Background(), rawPDF(""))
	require.NoError(t, err)

	tmp := runner.args[len(runner.args)-2]
	assert.True(t, strings.HasSuffix(tmp, ".pdf"))
	assert.Equal(t, []byte("%PDF-1.4 fake pdf content"), runner.fileSeen)

	_, statErr := os.Stat(tmp)
	assert.True(t, os.IsNotExist(statErr), "temp file should be removed")
}

func TestExtract_RunnerError(t *testing.T) {
	e := NewWithRunner(&mockRunner{err: errors.New("pdftotext crashed")})

	doc, err := e.Extract(context.Background(), rawPDF("/abs/x.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
	assert.Nil(t, doc)
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		wantPages []domain.Page
		wantTotal int
	}{
		{"empty output", "", nil, 0},
		{"single page without feed", "only", []domain.Page{{Number: 1, Text: "only"}}, 1},
		{"trailing feed", "a\fb\f", []domain.Page{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}}, 2},
		{"blank middle page", "a\f\fc\f", []domain.Page{{Number: 1, Text: "a"}, {Number: 3, Text: "c"}}, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pages, total := splitPages(tc.out)
			assert.Equal(t, tc.wantPages, pages)
			assert.Equal(t, tc.wantTotal, total)
		})
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		uri      string
		expected string
	}{
		{"first line as title", "Document Title\n\nSome content here.", "/doc.pdf", "Document Title"},
		{"skip empty lines", "\n\n\nActual Title\nContent", "/doc.pdf", "Actual Title"},
		{"fallback to filename", "", "/path/to/my_document-v2.pdf", "my document v2"},
		{"skip very long first line", strings.Repeat("x", 250) + "\nShort Title\nContent", "/doc.pdf", "Short Title"},
		{"skip binary line", string(make([]byte, 20)) + "\nReal Title", "/doc.pdf", "Real Title"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, extractTitle(tc.content, tc.uri))
		})
	}
}

func TestInstallInstructions(t *testing.T) {
	instructions := InstallInstructions()
	assert.Contains(t, instructions, "pdftotext")
	assert.Contains(t, instructions, "brew install poppler")
	assert.Contains(t, instructions, "apt install poppler-utils")
}

func TestErrPDFToolNotFound(t *testing.T) {
	assert.Contains(t, ErrPDFToolNotFound.Error(), "pdftotext")
}

func TestCheckAvailable(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	err := CheckAvailable()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPDFToolNotFound)
	assert.Contains(t, err.Error(), "poppler")
}
