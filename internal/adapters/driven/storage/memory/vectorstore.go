package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure VectorStore implements the interfaces.
var (
	_ driven.VectorStore = (*VectorStore)(nil)
	_ driven.IDLister    = (*VectorStore)(nil)
)

// VectorStore is an in-memory implementation of driven.VectorStore.
// Records are lost when the process exits.
type VectorStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.StoreRecord
	upserts     int
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		collections: make(map[string]map[string]domain.StoreRecord),
	}
}

// Name returns the store name.
func (s *VectorStore) Name() string {
	return string(domain.StoreMemory)
}

// Upsert stores records, replacing any with the same id.
func (s *VectorStore) Upsert(ctx context.Context, collection string, records []domain.StoreRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", domain.ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]domain.StoreRecord)
		s.collections[collection] = c
	}
	for _, r := range records {
		r.Embedding = slices.Clone(r.Embedding)
		r.Metadata = domain.CopyMetadata(r.Metadata)
		c[r.ID] = r
	}
	s.upserts++
	return nil
}

// Exists reports whether a record with the id is stored.
func (s *VectorStore) Exists(_ context.Context, collection, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection][id]
	return ok, nil
}

// DeleteSourceExcept deletes the records of sourceID that keep rejects.
func (s *VectorStore) DeleteSourceExcept(ctx context.Context, collection string, origin domain.Origin, sourceID string, keep func(string) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	for id, r := range s.collections[collection] {
		if r.Metadata["source_id"] != sourceID || r.Metadata["origin"] != string(origin) || keep(id) {
			continue
		}
		delete(s.collections[collection], id)
		deleted = append(deleted, id)
	}
	slices.Sort(deleted)
	return deleted, nil
}

// ListIDs returns every record id of the collection, sorted.
func (s *VectorStore) ListIDs(_ context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Get returns a copy of a stored record.
func (s *VectorStore) Get(_ context.Context, collection, id string) (*domain.StoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.collections[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

// Count returns the number of records in the collection.
func (s *VectorStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Upserts returns the number of successful Upsert calls.
func (s *VectorStore) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

// Close is a no-op.
func (s *VectorStore) Close() error {
	return nil
}
