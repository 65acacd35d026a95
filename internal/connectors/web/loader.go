// Package web loads web pages listed in a URL file.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/extractors"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// ErrNonTextContent is returned for responses that are neither text nor PDF.
var ErrNonTextContent = errors.New("non-text content")

// Verify interface compliance.
var _ driven.Loader = (*Loader)(nil)

// Loader fetches every URL of a URL list file.
type Loader struct {
	urlsFile string
	cfg      domain.FetchSettings
	client   *http.Client
	limiter  *HostLimiter
	now      func() time.Time
}

// Option configures the loader.
type Option func(*Loader)

// WithHTTPClient replaces the HTTP client. The client timeout still comes
// from the fetch settings when the given client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		l.client = c
	}
}

// New creates a loader for the URL file.
func New(urlsFile string, cfg domain.FetchSettings, opts ...Option) *Loader {
	l := &Loader{
		urlsFile: urlsFile,
		cfg:      cfg,
		client:   &http.Client{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client.Timeout == 0 {
		l.client.Timeout = cfg.Timeout
	}
	l.limiter = NewHostLimiter(RateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		BurstSize:         cfg.Burst,
	})
	return l
}

// Name returns the loader name.
func (l *Loader) Name() string {
	return "urls"
}

// Origin returns the origin of loaded documents.
func (l *Loader) Origin() domain.Origin {
	return domain.OriginURL
}

// Validate checks that the URL file exists and is readable.
func (l *Loader) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(l.urlsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewConfigError("urls_file", "url file %s does not exist", l.urlsFile)
		}
		return domain.NewConfigError("urls_file", "cannot access %s: %v", l.urlsFile, err)
	}
	if info.IsDir() {
		return domain.NewConfigError("urls_file", "%s is a directory", l.urlsFile)
	}

	f, err := os.Open(l.urlsFile)
	if err != nil {
		return domain.NewConfigError("urls_file", "cannot read %s: %v", l.urlsFile, err)
	}
	return f.Close()
}

// Load fetches the listed URLs in file order.
func (l *Loader) Load(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error, 16)

	go func() {
		defer close(docs)
		defer close(errs)

		urls, invalid, err := ReadURLFile(l.urlsFile)
		if err != nil {
			sendErr(ctx, errs, &domain.LoadError{SourceID: l.urlsFile, Err: err})
			return
		}
		for _, e := range invalid {
			if !sendErr(ctx, errs, e) {
				return
			}
		}

		logger.Debug("Loading %d URLs from %s", len(urls), l.urlsFile)

		for _, u := range urls {
			if ctx.Err() != nil {
				return
			}

			doc, err := l.fetch(ctx, u)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !sendErr(ctx, errs, &domain.LoadError{SourceID: u, Err: err}) {
					return
				}
				continue
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

func sendErr(ctx context.Context, errs chan<- error, err error) bool {
	select {
	case errs <- err:
		return true
	case <-ctx.Done():
		return false
	}
}

// fetch downloads one URL.
func (l *Loader) fetch(ctx context.Context, rawURL string) (*domain.RawDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	limiter := l.limiter.For(u.Hostname())
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if l.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", l.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,application/pdf;q=0.8,*/*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"), l.now())
		limiter.RecordRateLimitError(retryAfter)
		return nil, &domain.RateLimitError{RetryAfter: retryAfter, Message: "host " + u.Hostname()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	body, err := l.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mimeType := extractors.BaseMIMEType(contentType)
	if !acceptable(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrNonTextContent, mimeType)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &domain.RawDocument{
		SourceID: rawURL,
		Origin:   domain.OriginURL,
		URI:      finalURL,
		MIMEType: mimeType,
		Content:  body,
		Metadata: map[string]any{
			"source_id":    rawURL,
			"url":          finalURL,
			"fetched_at":   l.now().UTC().Format(time.RFC3339),
			"content_type": contentType,
			"status_code":  resp.StatusCode,
		},
	}, nil
}

func (l *Loader) readBody(r io.Reader) ([]byte, error) {
	limit := l.cfg.MaxBodyBytes
	if limit <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}

// acceptable reports whether a MIME type carries text the extractors read.
func acceptable(mimeType string) bool {
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		return true
	case mimeType == "application/xhtml+xml", mimeType == "application/pdf":
		return true
	}
	return false
}
