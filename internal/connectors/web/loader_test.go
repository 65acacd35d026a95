package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func testFetchSettings() domain.FetchSettings {
	return domain.FetchSettings{
		Timeout:      2 * time.Second,
		MaxBodyBytes: 1024,
		UserAgent:    "sercha-ingest/test",
	}
}

func writeURLs(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "documents_url.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))
	return path
}

func collect(docs <-chan domain.RawDocument, errs <-chan error) ([]domain.RawDocument, []error) {
	var gotDocs []domain.RawDocument
	var gotErrs []error
	for docs != nil || errs != nil {
		select {
		case d, ok := <-docs:
			if !ok {
				docs = nil
				continue
			}
			gotDocs = append(gotDocs, d)
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			gotErrs = append(gotErrs, e)
		}
	}
	return gotDocs, gotErrs
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sercha-ingest/test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Lúa</p></body></html>")
	})
	mux.HandleFunc("/paper.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, strings.Repeat("x", 2048))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	mux.HandleFunc("/missing", http.NotFound)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoader_Basics(t *testing.T) {
	l := New("urls.txt", testFetchSettings())
	assert.Equal(t, "urls", l.Name())
	assert.Equal(t, domain.OriginURL, l.Origin())
	assert.Equal(t, 2*time.Second, l.client.Timeout)
}

func TestLoader_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("existing file", func(t *testing.T) {
		assert.NoError(t, New(writeURLs(t, "https://example.com"), testFetchSettings()).Validate(ctx))
	})

	t.Run("missing file", func(t *testing.T) {
		err := New(filepath.Join(t.TempDir(), "nope.txt"), testFetchSettings()).Validate(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("directory", func(t *testing.T) {
		err := New(t.TempDir(), testFetchSettings()).Validate(ctx)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Equal(t, context.Canceled, New("x", testFetchSettings()).Validate(cctx))
	})
}

func TestLoader_Load(t *testing.T) {
	srv := newSite(t)
	path := writeURLs(t,
		"# sources",
		srv.URL+"/page",
		"http://127.0.0.1:1/unreachable",
		srv.URL+"/missing",
		srv.URL+"/image.png",
		srv.URL+"/big",
		srv.URL+"/paper.pdf",
		srv.URL+"/redirect",
		"mailto:someone@example.com",
	)

	l := New(path, testFetchSettings())
	fixed := time.Date(2025, 3, 1, 8, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	l.now = func() time.Time { return fixed }

	docs, errs := collect(l.Load(context.Background()))

	require.Len(t, docs, 3)
	assert.Equal(t, srv.URL+"/page", docs[0].SourceID)
	assert.Equal(t, domain.OriginURL, docs[0].Origin)
	assert.Equal(t, "text/html", docs[0].MIMEType)
	assert.Equal(t, "<html><body><p>Lúa</p></body></html>", string(docs[0].Content))
	assert.Equal(t, "2025-03-01T01:30:00Z", docs[0].Metadata["fetched_at"])
	assert.Equal(t, 200, docs[0].Metadata["status_code"])
	assert.Equal(t, "text/html; charset=utf-8", docs[0].Metadata["content_type"])

	assert.Equal(t, "application/pdf", docs[1].MIMEType)

	assert.Equal(t, srv.URL+"/redirect", docs[2].SourceID)
	assert.Equal(t, srv.URL+"/page", docs[2].URI)

	require.Len(t, errs, 5)
	refs := make(map[string]error)
	for _, e := range errs {
		var le *domain.LoadError
		require.True(t, errors.As(e, &le), "expected LoadError, got %T", e)
		refs[le.SourceID] = le
	}
	assert.Contains(t, refs, "mailto:someone@example.com")
	assert.Contains(t, refs, "http://127.0.0.1:1/unreachable")
	assert.Contains(t, refs[srv.URL+"/missing"].Error(), "http status 404")
	assert.ErrorIs(t, refs[srv.URL+"/image.png"], ErrNonTextContent)
	assert.Contains(t, refs[srv.URL+"/big"].Error(), "body exceeds 1024 bytes")
}

func TestLoader_Load_RateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	l := New(writeURLs(t, srv.URL+"/a"), testFetchSettings())
	docs, errs := collect(l.Load(context.Background()))

	assert.Empty(t, docs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrRateLimited)
	assert.ErrorIs(t, errs[0], domain.ErrLoad)
	assert.Equal(t, int32(1), hits.Load())
	assert.False(t, l.limiter.For("127.0.0.1").Allow())
}

func TestLoader_Load_MissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "gone.txt"), testFetchSettings())
	docs, errs := collect(l.Load(context.Background()))

	assert.Empty(t, docs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrLoad)
}

func TestLoader_Load_Cancelled(t *testing.T) {
	srv := newSite(t)
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = fmt.Sprintf("%s/page?n=%d", srv.URL, i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	docCh, errCh := New(writeURLs(t, lines...), testFetchSettings()).Load(ctx)

	first := <-docCh
	assert.NotEmpty(t, first.Content)
	cancel()

	count := 1
	for range docCh {
		count++
	}
	for range errCh {
	}
	assert.Less(t, count, 20)
}
