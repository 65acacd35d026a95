package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure DedupCache implements the interface.
var _ driven.DedupCache = (*DedupCache)(nil)

// DedupCache is an in-memory implementation of driven.DedupCache, used when
// no shared cache is configured.
type DedupCache struct {
	mu  sync.RWMutex
	ids map[string]map[string]struct{}
}

// NewDedupCache creates a new in-memory dedup cache.
func NewDedupCache() *DedupCache {
	return &DedupCache{ids: make(map[string]map[string]struct{})}
}

// Contains reports whether the id is cached.
func (c *DedupCache) Contains(_ context.Context, collection, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[collection][id]
	return ok, nil
}

// Add caches ids.
func (c *DedupCache) Add(_ context.Context, collection string, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.ids[collection]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		c.ids[collection] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return nil
}

// Remove evicts ids.
func (c *DedupCache) Remove(_ context.Context, collection string, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.ids[collection], id)
	}
	return nil
}

// Close is a no-op.
func (c *DedupCache) Close() error {
	return nil
}
