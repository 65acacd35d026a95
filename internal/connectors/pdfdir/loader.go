// Package pdfdir loads the PDF files of a directory.
package pdfdir

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/extractors/pdf"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// Verify interface compliance.
var _ driven.Loader = (*Loader)(nil)

// Loader reads *.pdf files from a directory in lexical path order.
type Loader struct {
	dir       string
	recursive bool
	checkTool func() error
}

// Option configures the loader.
type Option func(*Loader)

// WithRecursive makes the loader walk subdirectories.
func WithRecursive(recursive bool) Option {
	return func(l *Loader) {
		l.recursive = recursive
	}
}

// WithToolCheck replaces the pdftotext availability check.
func WithToolCheck(check func() error) Option {
	return func(l *Loader) {
		l.checkTool = check
	}
}

// New creates a loader for dir.
func New(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:       dir,
		checkTool: pdf.CheckAvailable,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the loader name.
func (l *Loader) Name() string {
	return "pdfs"
}

// Origin returns the origin of loaded documents.
func (l *Loader) Origin() domain.Origin {
	return domain.OriginPDF
}

// Validate checks that the directory exists and pdftotext is installed.
func (l *Loader) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewConfigError("pdf_dir", "directory %s does not exist", l.dir)
		}
		return domain.NewConfigError("pdf_dir", "cannot access %s: %v", l.dir, err)
	}
	if !info.IsDir() {
		return domain.NewConfigError("pdf_dir", "%s is not a directory", l.dir)
	}

	if l.checkTool != nil {
		if err := l.checkTool(); err != nil {
			return &domain.ConfigError{Field: "pdftotext", Err: err}
		}
	}
	return nil
}

// Files returns the PDF paths the loader would read, in order.
func (l *Loader) Files() ([]string, error) {
	var files []string

	if !l.recursive {
		entries, err := os.ReadDir(l.dir)
		if err != nil {
			return nil, fmt.Errorf("read dir: %w", err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && isPDF(e.Name()) {
				files = append(files, filepath.Join(l.dir, e.Name()))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && isPDF(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Load reads each PDF file.
func (l *Loader) Load(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error, 16)

	go func() {
		defer close(docs)
		defer close(errs)

		files, err := l.Files()
		if err != nil {
			select {
			case errs <- &domain.LoadError{SourceID: l.dir, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		logger.Debug("Found %d PDF files in %s", len(files), l.dir)

		for _, path := range files {
			if ctx.Err() != nil {
				return
			}

			doc, err := readPDF(path)
			if err != nil {
				select {
				case errs <- &domain.LoadError{SourceID: filepath.Clean(path), Err: err}:
					continue
				case <-ctx.Done():
					return
				}
			}

			select {
			case docs <- *doc:
			case <-ctx.Done():
				return
			}
		}
	}()

	return docs, errs
}

func readPDF(path string) (*domain.RawDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	sourceID := filepath.Clean(path)
	uri := sourceID
	if abs, err := filepath.Abs(path); err == nil {
		uri = abs
	}

	return &domain.RawDocument{
		SourceID: sourceID,
		Origin:   domain.OriginPDF,
		URI:      uri,
		MIMEType: "application/pdf",
		Content:  content,
		Metadata: map[string]any{
			"source_id":   sourceID,
			"path":        uri,
			"modified_at": info.ModTime().UTC().Format(time.RFC3339),
			"size_bytes":  info.Size(),
		},
	}, nil
}
