package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// defaultLookupTimeout bounds each cache or store call made by the index.
const defaultLookupTimeout = 30 * time.Second

// DedupIndex answers whether a chunk fingerprint is already persisted in a
// collection. It consults an in-memory set, then the optional shared cache,
// then the vector store. The store is the source of truth.
type DedupIndex struct {
	collection string
	store      driven.VectorStore
	cache      driven.DedupCache
	timeout    time.Duration

	mu        sync.Mutex
	seen      map[string]struct{}
	queued    map[string]struct{}
	preloaded bool
}

// DedupOption configures a DedupIndex.
type DedupOption func(*DedupIndex)

// WithLookupTimeout bounds every cache and store call. A lookup that times
// out counts as a miss.
func WithLookupTimeout(d time.Duration) DedupOption {
	return func(idx *DedupIndex) {
		if d > 0 {
			idx.timeout = d
		}
	}
}

// NewDedupIndex creates a dedup index. cache may be nil.
func NewDedupIndex(collection string, store driven.VectorStore, cache driven.DedupCache, opts ...DedupOption) *DedupIndex {
	d := &DedupIndex{
		collection: collection,
		store:      store,
		cache:      cache,
		timeout:    defaultLookupTimeout,
		seen:       make(map[string]struct{}),
		queued:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Preload loads every id of the collection into memory when the store can
// list them. It runs at most once and returns the number of ids loaded.
func (d *DedupIndex) Preload(ctx context.Context) (int, error) {
	lister, ok := d.store.(driven.IDLister)
	if !ok {
		return 0, nil
	}

	d.mu.Lock()
	done := d.preloaded
	d.mu.Unlock()
	if done {
		return 0, nil
	}

	lctx, cancel := context.WithTimeout(ctx, d.timeout)
	ids, err := lister.ListIDs(lctx, d.collection)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("preload ids: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.seen[id] = struct{}{}
	}
	d.preloaded = true
	return len(ids), nil
}

// AlreadyIngested reports whether id is persisted. Cache failures fall back
// to the store; a store failure reports false since re-embedding is safe.
func (d *DedupIndex) AlreadyIngested(ctx context.Context, id string) bool {
	d.mu.Lock()
	_, ok := d.seen[id]
	d.mu.Unlock()
	if ok {
		return true
	}

	if d.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		hit, err := d.cache.Contains(cctx, d.collection, id)
		cancel()
		if err != nil {
			logger.Warn("dedup cache lookup failed: %v", err)
		} else if hit {
			d.remember(id)
			return true
		}
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	exists, err := d.store.Exists(sctx, d.collection, id)
	cancel()
	if err != nil {
		logger.Debug("store lookup for %s failed: %v", id, err)
		return false
	}
	if !exists {
		return false
	}

	d.remember(id)
	if d.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.cache.Add(cctx, d.collection, id); err != nil {
			logger.Warn("dedup cache back-fill failed: %v", err)
		}
	}
	return true
}

// Queue records that id is pending in this run. It returns false when the id
// was already queued, so a chunk repeated across documents is embedded once.
func (d *DedupIndex) Queue(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.queued[id]; ok {
		return false
	}
	d.queued[id] = struct{}{}
	return true
}

// MarkIngested records ids as persisted.
func (d *DedupIndex) MarkIngested(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	d.mu.Lock()
	for _, id := range ids {
		d.seen[id] = struct{}{}
	}
	d.mu.Unlock()

	if d.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.cache.Add(cctx, d.collection, ids...); err != nil {
			logger.Warn("dedup cache update failed: %v", err)
		}
	}
}

// Forget drops ids deleted from the store so they are embedded again when
// they reappear.
func (d *DedupIndex) Forget(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	d.mu.Lock()
	for _, id := range ids {
		delete(d.seen, id)
		delete(d.queued, id)
	}
	d.mu.Unlock()

	if d.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.cache.Remove(cctx, d.collection, ids...); err != nil {
			logger.Warn("dedup cache eviction failed: %v", err)
		}
	}
}

// Size returns the number of ids known to be persisted.
func (d *DedupIndex) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *DedupIndex) remember(id string) {
	d.mu.Lock()
	d.seen[id] = struct{}{}
	d.mu.Unlock()
}
