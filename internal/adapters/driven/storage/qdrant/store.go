// Package qdrant provides a vector store backed by the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

var (
	_ driven.VectorStore = (*Store)(nil)
	_ driven.IDLister    = (*Store)(nil)
)

// pointNamespace derives Qdrant point UUIDs from fingerprints.
var pointNamespace = uuid.MustParse("6f1d3c0e-8f5a-4d2b-9a51-2b7f3c9d4e10")

// fingerprintKey is the payload key holding the record id.
const fingerprintKey = "fingerprint"

// scrollPage is the number of points fetched per scroll request.
const scrollPage = 256

// Config configures the Qdrant store.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Store is a minimal REST client to Qdrant. Collections use cosine
// distance and are created on first write.
type Store struct {
	url    string
	apiKey string
	client *http.Client

	mu    sync.Mutex
	ready map[string]bool
}

// NewStore creates a Qdrant store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant: URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Store{
		url:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: client,
		ready:  make(map[string]bool),
	}, nil
}

// PointID returns the Qdrant point id for a record id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// Name returns the store name.
func (s *Store) Name() string {
	return string(domain.StoreQdrant)
}

// Upsert writes records as points, creating the collection if needed.
func (s *Store) Upsert(ctx context.Context, collection string, records []domain.StoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection, len(records[0].Embedding)); err != nil {
		return err
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", domain.ErrInvalidInput)
		}
		payload := domain.CopyMetadata(r.Metadata)
		payload[fingerprintKey] = r.ID
		payload["text"] = r.Text
		points[i] = map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Embedding,
			"payload": payload,
		}
	}

	return s.do(ctx, http.MethodPut, s.collectionPath(collection, "points")+"?wait=true",
		map[string]any{"points": points}, nil)
}

func (s *Store) ensureCollection(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[collection] {
		return nil
	}

	status, err := s.status(ctx, http.MethodGet, s.collectionPath(collection, ""))
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		if dim <= 0 {
			return fmt.Errorf("%w: cannot create collection without vector size", domain.ErrInvalidInput)
		}
		body := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		if err := s.do(ctx, http.MethodPut, s.collectionPath(collection, ""), body, nil); err != nil {
			return fmt.Errorf("create collection %s: %w", collection, err)
		}
	}
	s.ready[collection] = true
	return nil
}

// Exists reports whether a point for the id is stored.
func (s *Store) Exists(ctx context.Context, collection, id string) (bool, error) {
	var resp struct {
		Result []json.RawMessage `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionPath(collection, "points"),
		map[string]any{"ids": []string{PointID(id)}, "with_payload": false, "with_vector": false}, &resp)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return len(resp.Result) > 0, nil
}

// ListIDs scrolls the collection and returns every record id.
func (s *Store) ListIDs(ctx context.Context, collection string) ([]string, error) {
	return s.scrollFingerprints(ctx, collection, nil)
}

// DeleteSourceExcept deletes the points of sourceID whose record id keep rejects.
func (s *Store) DeleteSourceExcept(ctx context.Context, collection string, origin domain.Origin, sourceID string, keep func(string) bool) ([]string, error) {
	filter := map[string]any{
		"must": []any{
			map[string]any{"key": "source_id", "match": map[string]any{"value": sourceID}},
			map[string]any{"key": "origin", "match": map[string]any{"value": string(origin)}},
		},
	}
	ids, err := s.scrollFingerprints(ctx, collection, filter)
	if err != nil {
		return nil, err
	}

	var stale, points []string
	for _, id := range ids {
		if keep(id) {
			continue
		}
		stale = append(stale, id)
		points = append(points, PointID(id))
	}
	if len(stale) == 0 {
		return nil, nil
	}

	err = s.do(ctx, http.MethodPost, s.collectionPath(collection, "points/delete")+"?wait=true",
		map[string]any{"points": points}, nil)
	if err != nil {
		return nil, fmt.Errorf("delete stale points of %s: %w", sourceID, err)
	}
	slices.Sort(stale)
	return stale, nil
}

// scrollFingerprints returns the record id of every point matching filter.
func (s *Store) scrollFingerprints(ctx context.Context, collection string, filter map[string]any) ([]string, error) {
	var (
		ids    []string
		offset any
	)
	for {
		req := map[string]any{
			"limit":        scrollPage,
			"with_payload": []string{fingerprintKey},
			"with_vector":  false,
		}
		if filter != nil {
			req["filter"] = filter
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionPath(collection, "points/scroll"), req, &resp); err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		for _, p := range resp.Result.Points {
			if id, ok := p.Payload[fingerprintKey].(string); ok {
				ids = append(ids, id)
			}
		}
		if resp.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) collectionPath(collection, suffix string) string {
	p := s.url + "/collections/" + url.PathEscape(collection)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// statusError is returned for non-2xx responses.
type statusError struct {
	method string
	path   string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s: status %d: %s", e.method, e.path, e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

func (s *Store) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var rdr io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("qdrant: encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	return req, nil
}

func (s *Store) do(ctx context.Context, method, target string, body, out any) error {
	req, err := s.newRequest(ctx, method, target, body)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, path: req.URL.Path, code: resp.StatusCode, body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}

func (s *Store) status(ctx context.Context, method, target string) (int, error) {
	req, err := s.newRequest(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s: %w", method, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return resp.StatusCode, &statusError{method: method, path: req.URL.Path, code: resp.StatusCode}
	}
	return resp.StatusCode, nil
}
