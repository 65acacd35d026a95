package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// errorCache fails every call.
type errorCache struct{ adds int }

func (c *errorCache) Contains(_ context.Context, _, _ string) (bool, error) {
	return false, errors.New("connection refused")
}

func (c *errorCache) Add(_ context.Context, _ string, _ ...string) error {
	c.adds++
	return errors.New("connection refused")
}

func (c *errorCache) Remove(_ context.Context, _ string, _ ...string) error {
	return errors.New("connection refused")
}

func (c *errorCache) Close() error { return nil }

// blockingStore never answers a lookup before its context ends.
type blockingStore struct{ *memory.VectorStore }

func (blockingStore) Exists(ctx context.Context, _, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (blockingStore) ListIDs(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// blockingCache never answers before its context ends.
type blockingCache struct{ *memory.DedupCache }

func (blockingCache) Contains(ctx context.Context, _, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

// errorStore fails every lookup.
type errorStore struct{ driven.VectorStore }

func (errorStore) Exists(_ context.Context, _, _ string) (bool, error) {
	return false, errors.New("timeout")
}

func seedStore(t *testing.T, ids ...string) *memory.VectorStore {
	t.Helper()
	store := memory.NewVectorStore()
	records := make([]domain.StoreRecord, len(ids))
	for i, id := range ids {
		records[i] = domain.StoreRecord{ID: id, Text: id, Embedding: []float32{1}}
	}
	require.NoError(t, store.Upsert(context.Background(), "c", records))
	return store
}

func TestDedupIndex_Preload(t *testing.T) {
	store := seedStore(t, "a", "b")
	d := NewDedupIndex("c", store, nil)

	n, err := d.Preload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, d.Size())

	n, err = d.Preload(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "preload runs once")
}

func TestDedupIndex_PreloadWithoutLister(t *testing.T) {
	d := NewDedupIndex("c", errorStore{memory.NewVectorStore()}, nil)
	n, err := d.Preload(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDedupIndex_AlreadyIngested(t *testing.T) {
	ctx := context.Background()

	t.Run("store hit back-fills the cache", func(t *testing.T) {
		cache := memory.NewDedupCache()
		d := NewDedupIndex("c", seedStore(t, "a"), cache)

		assert.True(t, d.AlreadyIngested(ctx, "a"))
		assert.False(t, d.AlreadyIngested(ctx, "z"))

		hit, err := cache.Contains(ctx, "c", "a")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, 1, d.Size())
	})

	t.Run("cache hit skips the store", func(t *testing.T) {
		cache := memory.NewDedupCache()
		require.NoError(t, cache.Add(ctx, "c", "x"))
		d := NewDedupIndex("c", errorStore{memory.NewVectorStore()}, cache)

		assert.True(t, d.AlreadyIngested(ctx, "x"))
	})

	t.Run("cache failure falls back to the store", func(t *testing.T) {
		d := NewDedupIndex("c", seedStore(t, "a"), &errorCache{})
		assert.True(t, d.AlreadyIngested(ctx, "a"))
	})

	t.Run("store failure reports not ingested", func(t *testing.T) {
		d := NewDedupIndex("c", errorStore{memory.NewVectorStore()}, nil)
		assert.False(t, d.AlreadyIngested(ctx, "a"))
	})

	t.Run("collections are separate", func(t *testing.T) {
		d := NewDedupIndex("other", seedStore(t, "a"), nil)
		assert.False(t, d.AlreadyIngested(ctx, "a"))
	})
}

func TestDedupIndex_Queue(t *testing.T) {
	d := NewDedupIndex("c", memory.NewVectorStore(), nil)
	assert.True(t, d.Queue("a"))
	assert.False(t, d.Queue("a"))
	assert.True(t, d.Queue("b"))
}

func TestDedupIndex_MarkIngested(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewDedupCache()
	d := NewDedupIndex("c", memory.NewVectorStore(), cache)

	d.MarkIngested(ctx, "a", "b")
	assert.True(t, d.AlreadyIngested(ctx, "a"))
	hit, err := cache.Contains(ctx, "c", "b")
	require.NoError(t, err)
	assert.True(t, hit)

	failing := &errorCache{}
	d = NewDedupIndex("c", memory.NewVectorStore(), failing)
	d.MarkIngested(ctx, "a")
	assert.Equal(t, 1, failing.adds)
	assert.Equal(t, 1, d.Size())

	d.MarkIngested(ctx)
	assert.Equal(t, 1, failing.adds)
}

func TestDedupIndex_LookupsAreBounded(t *testing.T) {
	ctx := context.Background()
	d := NewDedupIndex("c", blockingStore{memory.NewVectorStore()}, blockingCache{memory.NewDedupCache()},
		WithLookupTimeout(50*time.Millisecond))

	start := time.Now()
	assert.False(t, d.AlreadyIngested(ctx, "a"))
	_, err := d.Preload(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDedupIndex_Forget(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewDedupCache()
	d := NewDedupIndex("c", memory.NewVectorStore(), cache)

	d.MarkIngested(ctx, "a", "b")
	require.True(t, d.Queue("a"))
	d.Forget(ctx, "a")

	assert.False(t, d.AlreadyIngested(ctx, "a"))
	assert.True(t, d.AlreadyIngested(ctx, "b"))
	assert.True(t, d.Queue("a"), "forgotten ids can be queued again")
	hit, err := cache.Contains(ctx, "c", "a")
	require.NoError(t, err)
	assert.False(t, hit)

	failing := NewDedupIndex("c", memory.NewVectorStore(), &errorCache{})
	failing.MarkIngested(ctx, "a")
	failing.Forget(ctx, "a")
	assert.Zero(t, failing.Size())
}
