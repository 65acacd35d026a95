// Package pdf extracts page text from PDF files using the pdftotext tool
// from poppler.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// ToolName is the external binary used for extraction.
const ToolName = "pdftotext"

// maxTitleRunes bounds a first line that can serve as a title.
const maxTitleRunes = 200

// ErrPDFToolNotFound is returned when pdftotext is not on PATH.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// Verify interface compliance.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles PDF documents.
type Extractor struct {
	runner CommandRunner
}

// New creates a PDF extractor that shells out to pdftotext.
func New() *Extractor {
	return NewWithRunner(execRunner{})
}

// NewWithRunner creates a PDF extractor with a custom command runner.
func NewWithRunner(runner CommandRunner) *Extractor {
	return &Extractor{runner: runner}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract runs pdftotext and splits its output into pages. A PDF without
// extractable text yields a document with empty text.
func (e *Extractor) Extract(ctx context.Context, raw *domain.RawDocument) (*domain.SourceDocument, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	path := raw.Path()
	if path == "" {
		tmp, cleanup, err := writeTemp(raw.Content)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = tmp
	}

	out, err := e.runner.Run(ctx, ToolName, "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	pages, total := splitPages(string(out))
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	text := strings.Join(texts, "\n\n")

	metadata := domain.CopyMetadata(raw.Metadata)
	metadata["source_id"] = raw.SourceID
	metadata["mime_type"] = "application/pdf"
	metadata["format"] = "pdf"
	metadata["page_count"] = total

	return &domain.SourceDocument{
		SourceID: raw.SourceID,
		Origin:   raw.Origin,
		Title:    extractTitle(text, raw.URI),
		RawText:  text,
		Pages:    pages,
		Metadata: metadata,
	}, nil
}

// splitPages splits pdftotext output on form feeds. Blank pages are dropped
// but later pages keep their numbers. It also returns the page count.
func splitPages(out string) ([]domain.Page, int) {
	parts := strings.Split(out, "\f")
	// pdftotext terminates every page, including the last, with a form feed.
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	var pages []domain.Page
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: part})
	}
	if len(parts) == 1 && len(pages) == 0 {
		return nil, 0
	}
	return pages, len(parts)
}

// writeTemp writes content to a temporary .pdf file.
func writeTemp(content []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "sercha-ingest-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// extractTitle returns the first non-empty line shorter than 200 runes, or
// a title derived from the file name.
func extractTitle(content, uri string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.ContainsRune(line, 0) {
			continue
		}
		if utf8.RuneCountInString(line) < maxTitleRunes {
			return line
		}
	}

	filename := filepath.Base(uri)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

// CheckAvailable reports whether pdftotext is on PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath(ToolName); err != nil {
		return fmt.Errorf("%w\n%s", ErrPDFToolNotFound, InstallInstructions())
	}
	return nil
}

// InstallInstructions explains how to install pdftotext.
func InstallInstructions() string {
	return `pdftotext is required to read PDF files. Install poppler:
  macOS:          brew install poppler
  Debian/Ubuntu:  sudo apt install poppler-utils
  Fedora:         sudo dnf install poppler-utils`
}
